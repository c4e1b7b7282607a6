// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
)

// Pinger is the health probe each store exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthProbeTimeout bounds each dependency probe so a wedged store
// cannot hang the liveness endpoint.
const healthProbeTimeout = 2 * time.Second

// HealthCheck reports process health plus the state of both stores and
// the loaded index version. Any failing probe turns the whole response
// 503 so load balancers stop routing here.
func HealthCheck(statsDB, convDB Pinger, provider *index.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()

		checks := gin.H{}
		healthy := true

		probe := func(name string, p Pinger) {
			if p == nil {
				checks[name] = "not configured"
				return
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				healthy = false
				return
			}
			checks[name] = "ok"
		}
		probe("statistics_store", statsDB)
		probe("conversation_store", convDB)

		if provider != nil {
			idx := provider.Current()
			checks["index_version"] = idx.VersionTag()
			checks["index_chunks"] = idx.Size()
		}

		status := http.StatusOK
		body := gin.H{"status": "ok", "checks": checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}
