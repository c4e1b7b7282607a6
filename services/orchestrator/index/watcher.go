// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce absorbs the burst of events from one index publish
// (two renames plus editor noise) into a single reload.
const defaultDebounce = 500 * time.Millisecond

// =============================================================================
// Provider
// =============================================================================

// Provider hands out the current Index and supports atomic replacement.
//
// Requests call Current exactly once and use that value for their whole
// lifetime; a concurrent swap never mutates an index a request already
// holds.
type Provider struct {
	current atomic.Pointer[Index]
}

// NewProvider wraps an initial index.
func NewProvider(idx *Index) *Provider {
	p := &Provider{}
	p.current.Store(idx)
	return p
}

// Current returns the live index.
func (p *Provider) Current() *Index {
	return p.current.Load()
}

// Swap publishes a new index. Old readers keep their value.
func (p *Provider) Swap(idx *Index) {
	p.current.Store(idx)
}

// =============================================================================
// Watcher
// =============================================================================

// Watcher reloads the index when the on-disk pair changes.
//
// # Description
//
// Watches the parent directories of both files (renames surface as
// directory events), debounces change bursts, reloads the pair, and swaps
// the provider on success. A failed reload keeps the previous index and
// logs the error; the next change triggers another attempt.
type Watcher struct {
	provider   *Provider
	matrixPath string
	chunksPath string
	opts       Options
	debounce   time.Duration

	fsw      *fsnotify.Watcher
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// NewWatcher builds a Watcher; call Start to begin watching.
func NewWatcher(provider *Provider, matrixPath, chunksPath string, opts Options) (*Watcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider must not be nil")
	}
	return &Watcher{
		provider:   provider,
		matrixPath: filepath.Clean(matrixPath),
		chunksPath: filepath.Clean(chunksPath),
		opts:       opts,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}, nil
}

// Start registers directory watches and launches the event loop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	dirs := map[string]bool{
		filepath.Dir(w.matrixPath): true,
		filepath.Dir(w.chunksPath): true,
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
	}

	// Assigned only once every watch is registered: Stop treats a nil fsw
	// as "run never launched" and must not wait on finished after a
	// failed Start.
	w.fsw = fsw
	go w.run()
	slog.Info("Index watcher started",
		"matrix", w.matrixPath, "chunks", w.chunksPath, "debounce", w.debounce)
	return nil
}

// Stop ends the event loop and releases the watcher. Safe to call twice,
// and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			<-w.finished
			_ = w.fsw.Close()
		}
	})
}

// run debounces relevant events into reloads.
func (w *Watcher) run() {
	defer close(w.finished)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Index file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Index watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// relevant reports whether the event touches either index file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.matrixPath || name == w.chunksPath
}

// reload loads the pair and swaps it in on success.
func (w *Watcher) reload() {
	started := time.Now()
	idx, err := Load(w.matrixPath, w.chunksPath, w.opts)
	if err != nil {
		slog.Error("Index reload failed, keeping previous index", "error", err)
		return
	}
	w.provider.Swap(idx)
	slog.Info("Index reloaded",
		"chunks", idx.Size(), "dim", idx.Dim(),
		"version_tag", idx.VersionTag(), "duration", time.Since(started))
}
