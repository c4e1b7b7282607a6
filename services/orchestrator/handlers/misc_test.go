// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/pipeline"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/sqlgen"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Test mode keeps gin quiet in test output.
	gin.SetMode(gin.TestMode)
}

// staticEmbedder returns the same unit vector for every text.
type staticEmbedder struct{ vec []float32 }

func (s staticEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vec, nil
}

func (s staticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s staticEmbedder) Dim() int { return len(s.vec) }

// staticChat answers every prompt with one canned reply.
type staticChat struct {
	reply string
	err   error
}

func (s staticChat) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return s.reply, s.err
}

// newConvStore opens a throwaway conversation store.
func newConvStore(t *testing.T) *conversation.Store {
	t.Helper()
	store, err := conversation.Open(conversation.Config{
		Path: filepath.Join(t.TempDir(), "conversations.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newStatsStore opens a throwaway seeded statistics store.
func newStatsStore(t *testing.T) *stats.Store {
	t.Helper()
	store, err := stats.Open(stats.Config{Path: filepath.Join(t.TempDir(), "stats.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.SeedDemo(context.Background()))
	return store
}

// newTestProvider builds a one-chunk index that passes the quality filter.
func newTestProvider(t *testing.T) *index.Provider {
	t.Helper()
	idx, err := index.New(
		[][]float32{{1, 0, 0}},
		[]index.Chunk{{
			ID:       "h1",
			Source:   "home_court.md",
			Text:     "Fans argue that loud home crowds tilt close playoff games toward the hosts.",
			Metadata: map[string]string{"data_type": "discussion"},
		}},
		"handlers-test-v1",
		index.Options{})
	require.NoError(t, err)
	return index.NewProvider(idx)
}

// newChatPipeline wires a full pipeline over fakes and throwaway stores.
func newChatPipeline(t *testing.T, convStore *conversation.Store, chat staticChat) *pipeline.Pipeline {
	t.Helper()
	statsStore := newStatsStore(t)
	pipe, err := pipeline.New(pipeline.Config{
		SQL:      sqlgen.New(chat, statsStore, nil),
		Index:    newTestProvider(t),
		Embedder: staticEmbedder{vec: []float32{1, 0, 0}},
		Chat:     chat,
		Reader:   convStore,
		Writer:   convStore,
	})
	require.NoError(t, err)
	return pipe
}

// performRequest executes one request against the router and returns the
// recorder.
func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals the recorder body into out.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out),
		"body: %s", w.Body.String())
}

// errorKind extracts the error envelope kind from a failure response.
func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, w, &envelope)
	return envelope.Error.Kind
}
