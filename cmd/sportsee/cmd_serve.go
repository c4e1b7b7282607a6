// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator"
)

var (
	servePort int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the question-answering HTTP server",
		Long: `Starts the Sports-See server: loads the vector index and both SQLite
stores, wires the retrieval pipeline, and serves the chat API until
interrupted. Equivalent to running the standalone orchestrator binary.`,
		Run: runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured listen port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	if servePort > 0 {
		settings.Port = servePort
	}

	logger.Info("starting server",
		"port", settings.Port,
		"chat_model", settings.ChatModel,
		"index_matrix", settings.IndexMatrixPath)

	svc, err := orchestrator.New(settings)
	if err != nil {
		fail(fmt.Errorf("initialize orchestrator: %w", err))
	}
	if err := svc.Run(); err != nil {
		fail(fmt.Errorf("server stopped: %w", err))
	}
}
