// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
)

var (
	healthServer string
	healthJSON   bool

	// healthCmd probes a running server's /healthz endpoint.
	//
	// Exits 0 when the server reports ok and 1 when it is degraded or
	// unreachable, so the command slots into scripts and readiness gates.
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Probe a running server's health endpoint",
		Args:  cobra.NoArgs,
		Run:   runHealth,
	}
)

func init() {
	healthCmd.Flags().StringVar(&healthServer, "server", "",
		"server base URL (defaults to http://localhost:<configured port>)")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false,
		"emit the raw health report as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) {
	base := serverURL(healthServer)
	client := newAPIClient(base, 10*time.Second)

	report, _, err := client.Health(cmd.Context())
	if err != nil {
		fail(err)
	}

	if healthJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fail(err)
		}
	} else {
		ux.Title("Sports-See health: " + base)
		renderHealthReport(report)
	}

	if report.Status != "ok" {
		os.Exit(1)
	}
}

// renderHealthReport prints one status line per check, then the overall
// verdict. Returns whether the report was healthy.
func renderHealthReport(report healthReport) bool {
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		detail := fmt.Sprint(report.Checks[name])
		ux.Status(detail != "unavailable", name, detail)
	}

	healthy := report.Status == "ok"
	if healthy {
		ux.Success("status: ok")
	} else {
		ux.Error("status: " + report.Status)
	}
	return healthy
}
