// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers binds the HTTP surface to the retrieval pipeline and
// the conversation store. Every handler is a closure over its
// dependencies, decodes with gin, and answers errors through the shared
// sanitized envelope so internal failure detail never reaches a client.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/pipeline"
)

var tracer = otel.Tracer("sportsee.orchestrator.handlers")

// writeError sanitizes err and writes the uniform error envelope.
func writeError(c *gin.Context, err error) {
	sanitized := datatypes.Sanitize(err)
	c.JSON(sanitized.Kind.HTTPStatus(), datatypes.NewErrorResponse(sanitized))
}

// HandleChat answers one question through the retrieval pipeline.
//
// # Description
//
// The request is validated before any retrieval work: query length, k
// bounds, and, when a conversation id is supplied, that the
// conversation exists and is not deleted. Validation failures and
// pipeline errors both leave through the sanitized envelope; the
// pipeline itself never returns raw provider detail.
//
// # Inputs
//
//   - pipe: The retrieval pipeline; owns classification through persistence.
//   - reader: Conversation metadata access for the existence gate.
//
// # Outputs
//
//   - 200 with a datatypes.ChatResponse on success.
//   - 400 invalid_input, 404 conversation_not_found, 502/504 on upstream
//     or deadline failures.
func HandleChat(pipe *pipeline.Pipeline, reader conversation.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.chat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, datatypes.WrapError(datatypes.KindInvalidInput,
				"malformed request body", err))
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}
		req.EnsureDefaults()

		if req.ConversationID != "" {
			summary, err := reader.Get(ctx, req.ConversationID)
			if err != nil {
				writeError(c, err)
				return
			}
			if summary.Status == datatypes.StatusDeleted {
				writeError(c, datatypes.NewError(datatypes.KindConversationNotFound,
					"conversation not found"))
				return
			}
		}

		resp, err := pipe.Answer(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if !errors.Is(err, ctx.Err()) {
				slog.Error("chat request failed",
					"kind", datatypes.KindOf(err), "error", err)
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
