// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the orchestrator's HTTP surface on a gin
// engine. Path layout and handler wiring live here; engine-level
// middleware (tracing, logging) is the caller's concern.
package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/handlers"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/middleware"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/pipeline"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// SetupRoutes registers every endpoint.
//
// # Description
//
// The chat and conversation-management routes run behind the per-request
// deadline middleware. Health and metrics do not: the health probes
// carry their own short timeout, and a scrape should never inherit a
// chat-sized deadline.
//
// # Inputs
//
//   - router: The engine to register on.
//   - pipe: Retrieval pipeline behind POST /chat.
//   - convStore: Conversation store behind the management endpoints.
//   - statsStore: Statistics store, probed by the health endpoint.
//   - provider: Live index handle, reported by the health endpoint.
//   - gatherer: Metrics registry served at GET /metrics.
//   - requestDeadline: Per-request bound; non-positive applies the default.
func SetupRoutes(router *gin.Engine, pipe *pipeline.Pipeline, convStore *conversation.Store,
	statsStore *stats.Store, provider *index.Provider, gatherer prometheus.Gatherer,
	requestDeadline time.Duration) {

	router.GET("/healthz", handlers.HealthCheck(statsStore, convStore, provider))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/", middleware.Deadline(requestDeadline))

	api.POST("/chat", handlers.HandleChat(pipe, convStore))

	conversations := api.Group("/conversations")
	{
		conversations.POST("", handlers.CreateConversation(convStore))
		conversations.GET("", handlers.ListConversations(convStore))
		conversations.GET("/:id", handlers.GetConversation(convStore))
		conversations.GET("/:id/messages", handlers.GetConversationMessages(convStore))
		conversations.PUT("/:id", handlers.UpdateConversation(convStore))
		conversations.DELETE("/:id", handlers.DeleteConversation(convStore))
	}
}
