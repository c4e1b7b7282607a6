// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	// defaultCacheTTL expires cached vectors so model upgrades and corpus
	// churn cannot serve stale embeddings forever.
	defaultCacheTTL = 7 * 24 * time.Hour

	// gcInterval is how often the value-log garbage collector runs.
	gcInterval = time.Hour

	// gcDiscardRatio is the minimum reclaimable fraction before a value
	// log file is rewritten.
	gcDiscardRatio = 0.5
)

// =============================================================================
// Cache
// =============================================================================

// Cache is a persistent embedding cache backed by Badger.
//
// # Description
//
// Keys are content hashes computed by the Client; values are raw float32
// vectors. Entries carry a TTL. The cache is strictly best-effort: read
// and write failures are logged and treated as misses so the request path
// never fails on cache trouble.
type Cache struct {
	db  *badger.DB
	ttl time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64

	stopGC chan struct{}
	doneGC chan struct{}
}

// NewCache opens (or creates) a cache at dir and starts the GC loop.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithSyncWrites(false).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{slog: slog.Default().With("component", "embed_cache")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	c := &Cache{
		db:     db,
		ttl:    defaultCacheTTL,
		stopGC: make(chan struct{}),
		doneGC: make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Get returns the cached vector for key, if present and well-formed.
func (c *Cache) Get(key string) ([]float32, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("Embedding cache read failed", "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	vec, err := decodeVector(raw)
	if err != nil {
		slog.Warn("Embedding cache entry corrupt, treating as miss", "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return vec, true
}

// Put stores the vector under key with the cache TTL. Failures are logged.
func (c *Cache) Put(key string, vec []float32) {
	entry := badger.NewEntry([]byte(key), encodeVector(vec)).WithTTL(c.ttl)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Embedding cache write failed", "error", err)
	}
}

// Stats reports lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the GC loop and closes the store.
func (c *Cache) Close() error {
	close(c.stopGC)
	<-c.doneGC
	return c.db.Close()
}

// runGC reclaims value-log space on a fixed interval. ErrNoRewrite means
// there was nothing to collect and is not a failure.
func (c *Cache) runGC() {
	defer close(c.doneGC)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			for {
				err := c.db.RunValueLogGC(gcDiscardRatio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					slog.Warn("Embedding cache GC failed", "error", err)
				}
				break
			}
		}
	}
}

// =============================================================================
// Vector Encoding
// =============================================================================

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector payload length %d is not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

// =============================================================================
// Badger Logging Adapter
// =============================================================================

// badgerLogger routes Badger's printf-style logging through slog.
type badgerLogger struct {
	slog *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}
