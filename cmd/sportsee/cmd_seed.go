// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

var (
	seedDBPath string // output database path, defaults to config
	seedForce  bool   // replace an existing database file
)

// seedCmd creates the statistics database and loads the demo season
// snapshot. The server never creates its own schema, so this is the
// quick-start step before the first `sportsee serve`.
//
// The snapshot loader is not idempotent; an existing database is refused
// unless --force replaces it.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create and seed a demo statistics database",
	Args:  cobra.NoArgs,
	Run:   runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDBPath, "db", "",
		"database path (defaults to the configured stats_db_path)")
	seedCmd.Flags().BoolVar(&seedForce, "force", false,
		"replace an existing database file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	path := seedDBPath
	if path == "" {
		path = settings.StatsDBPath
	}

	if _, err := os.Stat(path); err == nil {
		if !seedForce {
			fail(fmt.Errorf("%s already exists; pass --force to replace it", path))
		}
		// WAL mode leaves sidecar files; stale ones would resurrect the
		// old contents.
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				fail(fmt.Errorf("remove %s: %w", p, err))
			}
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fail(fmt.Errorf("create database directory: %w", err))
		}
	}

	ux.Title("Sports-See demo seed")
	ux.Info(fmt.Sprintf("database: %s", path))

	store, err := stats.Open(stats.Config{Path: path})
	if err != nil {
		fail(err)
	}
	defer store.Close()

	if err := store.SeedDemo(cmd.Context()); err != nil {
		fail(err)
	}

	tables, err := store.Tables(cmd.Context())
	if err != nil {
		fail(err)
	}
	for _, table := range tables {
		ux.Status(true, "table", table)
	}
	logger.Info("demo database seeded", "path", path, "tables", len(tables))
	ux.Success("Demo season snapshot loaded")
}
