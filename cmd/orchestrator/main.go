// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the Sports-See question-answering server.
//
// Configuration is resolved from built-in defaults, then an optional YAML
// file named by SPORTSEE_CONFIG, then environment variable overrides.
// See services/orchestrator/config for the full variable list.
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run with defaults (expects data/ next to the binary)
//	OPENAI_API_KEY=sk-... ./orchestrator
//
//	# Run with a config file
//	SPORTSEE_CONFIG=config/production.yaml ./orchestrator
package main

import (
	"log/slog"
	"os"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings, err := config.Load(os.Getenv("SPORTSEE_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting orchestrator",
		"port", settings.Port,
		"chat_model", settings.ChatModel,
		"embedding_model", settings.EmbeddingModel,
		"index_matrix", settings.IndexMatrixPath,
		"metrics_enabled", settings.MetricsEnabled)

	svc, err := orchestrator.New(settings)
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
