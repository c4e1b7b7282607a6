// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// getVisible loads a conversation and hides soft-deleted ones behind
// conversation_not_found. Listing with an explicit status=deleted filter
// is the only management view that still reaches them.
func getVisible(c *gin.Context, store *conversation.Store, id string) (datatypes.ConversationSummary, bool) {
	summary, err := store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return datatypes.ConversationSummary{}, false
	}
	if summary.Status == datatypes.StatusDeleted {
		writeError(c, datatypes.NewError(datatypes.KindConversationNotFound,
			"conversation not found"))
		return datatypes.ConversationSummary{}, false
	}
	return summary, true
}

// CreateConversation starts an empty active conversation.
//
// The title is optional; an empty one is derived later from the first
// query. Responds 201 with the new conversation's metadata.
func CreateConversation(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req datatypes.CreateConversationRequest
		// An empty body is a valid "start with no title" request.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeError(c, datatypes.WrapError(datatypes.KindInvalidInput,
					"malformed request body", err))
				return
			}
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}

		id, err := store.Start(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		if req.Title != "" {
			if err := store.Rename(ctx, id, req.Title); err != nil {
				writeError(c, err)
				return
			}
		}

		summary, err := store.Get(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		slog.Info("conversation created", "conversation_id", id)
		c.JSON(http.StatusCreated, summary)
	}
}

// ListConversations returns conversation metadata filtered by status.
//
// Defaults: status=active, limit=20. limit is capped at 100 by
// validation. Results are ordered by most recent activity.
func ListConversations(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q datatypes.ListConversationsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			writeError(c, datatypes.WrapError(datatypes.KindInvalidInput,
				"malformed query parameters", err))
			return
		}
		if err := q.Validate(); err != nil {
			writeError(c, err)
			return
		}

		items, err := store.List(c.Request.Context(),
			datatypes.ConversationStatus(q.Status), q.Limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"conversations": items,
			"count":         len(items),
		})
	}
}

// GetConversation returns one conversation's metadata.
func GetConversation(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, ok := getVisible(c, store, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// GetConversationMessages returns metadata plus every persisted turn in
// order.
func GetConversationMessages(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		summary, ok := getVisible(c, store, id)
		if !ok {
			return
		}

		messages, err := store.Messages(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.ConversationDetail{
			ConversationSummary: summary,
			Messages:            messages,
		})
	}
}

// UpdateConversation renames a conversation and/or moves it between
// active and archived. Soft deletion is deliberately not reachable from
// here; DELETE is the only way to retire a conversation.
func UpdateConversation(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		var req datatypes.UpdateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, datatypes.WrapError(datatypes.KindInvalidInput,
				"malformed request body", err))
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}

		if _, ok := getVisible(c, store, id); !ok {
			return
		}

		if req.Title != "" {
			if err := store.Rename(ctx, id, req.Title); err != nil {
				writeError(c, err)
				return
			}
		}
		switch datatypes.ConversationStatus(req.Status) {
		case datatypes.StatusArchived:
			if err := store.Archive(ctx, id); err != nil {
				writeError(c, err)
				return
			}
		case datatypes.StatusActive:
			if err := store.Restore(ctx, id); err != nil {
				writeError(c, err)
				return
			}
		}

		summary, err := store.Get(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// DeleteConversation soft-deletes a conversation. The rows stay in the
// store; the conversation simply stops being addressable.
func DeleteConversation(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := getVisible(c, store, id); !ok {
			return
		}
		if err := store.SoftDelete(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		slog.Info("conversation soft-deleted", "conversation_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}
