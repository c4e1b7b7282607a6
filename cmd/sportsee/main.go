// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command sportsee is the operator CLI for the Sports-See stack.
//
// It serves the question-answering API, seeds the demo statistics
// database, builds and inspects vector indexes, runs an interactive chat
// session against a running server, and reports server health:
//
//	sportsee serve                      # start the HTTP server
//	sportsee seed                       # create + seed the demo stats DB
//	sportsee index build ./corpus      # build data/index from a corpus dir
//	sportsee index inspect             # summarize the on-disk index
//	sportsee chat                      # interactive REPL against a server
//	sportsee health                    # probe a server's /healthz
//
// Configuration follows the server's resolution order: defaults, then the
// YAML file named by --config (or SPORTSEE_CONFIG), then environment
// variables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/logging"
	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/config"
)

var (
	flagConfig   string
	flagLogLevel string
	flagPlain    bool

	// settings and logger are resolved once in the persistent pre-run and
	// shared by every subcommand.
	settings config.Settings
	logger   *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "sportsee",
		Short: "Operate the Sports-See NBA question-answering stack",
		Long: `sportsee manages the Sports-See stack: the hybrid retrieval server,
the on-disk vector index it serves from, and interactive access to both.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("SPORTSEE_CONFIG"),
		"YAML config file (defaults to $SPORTSEE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagPlain, "plain", false,
		"plain output without colors or spinners")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		ux.Init()
		if flagPlain {
			ux.SetMode(ux.ModePlain)
		}

		var err error
		logger, err = logging.New(logging.Config{
			Level:   logging.ParseLevel(flagLogLevel),
			Service: "sportsee",
		})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		// Library code logs through the default slog logger; route it to
		// stderr so stdout stays reserved for command output.
		slog.SetDefault(logger.Slog())

		settings, err = config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		return nil
	}
}

// fail prints the error and exits. Subcommands use it so partial output
// is followed by a clear failure line and a nonzero exit code.
func fail(err error) {
	ux.Error(err.Error())
	os.Exit(1)
}
