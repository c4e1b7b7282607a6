// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// =============================================================================
// Retention Scheduler
// =============================================================================

// RetentionConfig holds configuration for the background retention sweep.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 1 hour.
//   - MaxIdle: Conversations untouched for longer than this are archived.
//     Zero disables the scheduler entirely.
type RetentionConfig struct {
	Interval time.Duration
	MaxIdle  time.Duration
}

// DefaultRetentionConfig returns the scheduler defaults: hourly sweeps,
// retention disabled until MaxIdle is set.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{Interval: 1 * time.Hour}
}

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Archived  int
	StartTime time.Time
	EndTime   time.Time
}

// DurationMs reports the sweep duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Retention periodically archives conversations that have gone idle.
//
// # Description
//
// Uses the ticker + done channel pattern: Start launches a goroutine that
// sweeps at the configured interval until Stop is called or the context is
// cancelled. Archiving is a status flip, never a row deletion, so a sweep
// can never lose data. Only one scheduler should run per store.
type Retention struct {
	store  *Store
	config RetentionConfig

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRetention creates a retention scheduler over the given store.
func NewRetention(store *Store, config RetentionConfig) *Retention {
	if config.Interval <= 0 {
		config.Interval = DefaultRetentionConfig().Interval
	}
	return &Retention{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running or retention is
//     disabled (MaxIdle == 0).
func (r *Retention) Start(ctx context.Context) error {
	if r.config.MaxIdle <= 0 {
		return fmt.Errorf("retention is disabled: max idle is zero")
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("retention scheduler is already running")
	}
	r.running = true
	r.done = make(chan struct{}) // Reset for potential restart
	r.mu.Unlock()

	slog.Info("conversation retention scheduler starting",
		"interval", r.config.Interval.String(),
		"max_idle", r.config.MaxIdle.String(),
	)

	go r.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	slog.Info("conversation retention scheduler stopping")
	close(r.done)
	r.running = false
}

// RunNow performs one sweep immediately, outside the schedule.
func (r *Retention) RunNow(ctx context.Context) (SweepResult, error) {
	return r.sweep(ctx)
}

func (r *Retention) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Sweep once on start so a restart never defers overdue work.
	r.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("conversation retention scheduler stopped (context cancelled)")
			return
		case <-r.done:
			slog.Info("conversation retention scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			r.executeSweep(ctx)
		}
	}
}

func (r *Retention) executeSweep(ctx context.Context) {
	result, err := r.sweep(ctx)
	if err != nil {
		slog.Error("conversation retention sweep failed", "error", err)
		return
	}
	if result.Archived > 0 {
		slog.Info("conversation retention sweep completed",
			"archived", result.Archived,
			"duration_ms", result.DurationMs(),
		)
	} else {
		slog.Debug("conversation retention sweep completed (nothing idle)")
	}
}

// sweep archives every active conversation whose updated_at is older than
// the idle cutoff.
func (r *Retention) sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: time.Now()}
	cutoff := time.Now().UTC().Add(-r.config.MaxIdle)

	res, err := r.store.db.ExecContext(ctx,
		`UPDATE conversations SET status = ? WHERE status = ? AND updated_at < ?`,
		string(datatypes.StatusArchived), string(datatypes.StatusActive), cutoff)
	if err != nil {
		return result, fmt.Errorf("archive idle conversations: %w", err)
	}
	archived, err := res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("count archived conversations: %w", err)
	}

	result.Archived = int(archived)
	result.EndTime = time.Now()
	return result, nil
}
