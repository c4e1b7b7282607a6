// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding wraps the embedding provider behind a small interface.
//
// The provider client batches inputs, retries transient failures with
// exponential backoff, enforces an optional request rate limit, deduplicates
// identical in-flight queries, L2-normalizes every vector, and optionally
// caches results in a persistent store so repeated queries never pay for a
// second provider call.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
)

// maxBatchInputs bounds how many texts ride in one provider call.
const maxBatchInputs = 64

// retryDelays is the backoff schedule for transient provider failures.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// =============================================================================
// Interface
// =============================================================================

// Embedder converts text into unit-norm vectors.
//
// # Description
//
// EmbedQuery serves the request path (one query at a time); EmbedBatch
// serves bulk work such as index construction. Both return vectors of the
// configured dimension with unit L2 norm.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// =============================================================================
// Provider Client
// =============================================================================

// Config configures the provider-backed Embedder.
type Config struct {
	// APIKey authenticates against the provider. Empty falls back to the
	// /run/secrets/openai_api_key file.
	APIKey string

	// BaseURL overrides the provider endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model is the provider's embedding model identifier.
	Model string

	// Dim is the expected vector dimensionality. Provider responses with a
	// different dimension are rejected.
	Dim int

	// RateLimit caps provider calls per second. Zero disables limiting.
	RateLimit float64

	// Cache stores vectors across processes. Nil disables caching.
	Cache *Cache
}

// Client is the provider-backed Embedder implementation.
type Client struct {
	api     *openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
	cache   *Cache
	flight  singleflight.Group
}

var _ Embedder = (*Client)(nil)

// NewClient builds the provider-backed Embedder.
func NewClient(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		keyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(keyBytes))
			slog.Info("Read the embedding API key from container secrets")
		} else {
			return nil, fmt.Errorf("embedding api key not configured")
		}
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dim)
	}

	apiCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	slog.Info("Initializing embedding client",
		"model", cfg.Model, "dim", cfg.Dim,
		"rate_limit", cfg.RateLimit, "cache", cfg.Cache != nil)
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		dim:     cfg.Dim,
		limiter: limiter,
		cache:   cfg.Cache,
	}, nil
}

// Dim returns the configured vector dimensionality.
func (c *Client) Dim() int { return c.dim }

// EmbedQuery embeds a single query string.
//
// # Description
//
// Checks the cache first, then collapses identical concurrent queries into
// one provider call via singleflight. The result is unit-norm.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if c.cache != nil {
		if vec, ok := c.cache.Get(key); ok {
			return vec, nil
		}
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		vecs, err := c.embedChunk(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Put(key, vecs[0])
		}
		return vecs[0], nil
	})
	if err != nil {
		return nil, err
	}
	// Copy so callers can never corrupt a cached or shared vector.
	shared := v.([]float32)
	out := make([]float32, len(shared))
	copy(out, shared)
	return out, nil
}

// EmbedBatch embeds texts in provider-sized chunks, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchInputs {
		end := start + maxBatchInputs
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedChunk performs one provider call with rate limiting and retry.
func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			delay := retryDelays[attempt-1]
			slog.Warn("Retrying embedding call", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			lastErr = err
			if llm.IsRetryable(err) {
				continue
			}
			return nil, fmt.Errorf("embedding call failed: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embedding response has %d vectors for %d inputs",
				len(resp.Data), len(texts))
		}

		vecs := make([][]float32, len(texts))
		for i, d := range resp.Data {
			if len(d.Embedding) != c.dim {
				return nil, fmt.Errorf("embedding dimension %d does not match configured %d",
					len(d.Embedding), c.dim)
			}
			vec := make([]float32, c.dim)
			copy(vec, d.Embedding)
			if err := Normalize(vec); err != nil {
				return nil, fmt.Errorf("normalize embedding %d: %w", i, err)
			}
			vecs[i] = vec
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("embedding call failed after %d attempts: %w",
		len(retryDelays)+1, lastErr)
}

// cacheKey derives a stable key from the model, dimension, and text.
func (c *Client) cacheKey(text string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", c.model, c.dim, text)))
	return hex.EncodeToString(h[:])
}

// =============================================================================
// Vector Normalization
// =============================================================================

// Normalize scales the vector to unit L2 norm in place.
// A zero vector cannot be normalized and is an error.
func Normalize(vec []float32) error {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return fmt.Errorf("cannot normalize zero vector")
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return nil
}
