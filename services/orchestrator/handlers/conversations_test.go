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
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

func newConversationRouter(t *testing.T) (*gin.Engine, *conversation.Store) {
	t.Helper()
	store := newConvStore(t)

	router := gin.New()
	group := router.Group("/conversations")
	group.POST("", CreateConversation(store))
	group.GET("", ListConversations(store))
	group.GET("/:id", GetConversation(store))
	group.GET("/:id/messages", GetConversationMessages(store))
	group.PUT("/:id", UpdateConversation(store))
	group.DELETE("/:id", DeleteConversation(store))
	return router, store
}

// seedConversation starts a conversation with one persisted turn.
func seedConversation(t *testing.T, store *conversation.Store) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.Start(ctx)
	require.NoError(t, err)
	_, err = store.Append(ctx, id,
		"Who led the league in assists?",
		"Nikola Jokić averaged 10.2 assists per game. [SQL]",
		[]datatypes.SourceAttribution{{Source: "mvp_debate.md", Score: 88.5}}, 42)
	require.NoError(t, err)
	return id
}

func TestCreateConversation(t *testing.T) {
	t.Run("empty body starts untitled", func(t *testing.T) {
		router, _ := newConversationRouter(t)

		w := performRequest(router, "POST", "/conversations", nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var summary datatypes.ConversationSummary
		decodeBody(t, w, &summary)
		assert.NotEmpty(t, summary.ID)
		assert.Empty(t, summary.Title)
		assert.Equal(t, datatypes.StatusActive, summary.Status)
		assert.Zero(t, summary.MessageCount)
	})

	t.Run("title is applied", func(t *testing.T) {
		router, _ := newConversationRouter(t)

		w := performRequest(router, "POST", "/conversations",
			datatypes.CreateConversationRequest{Title: "Playoff questions"})
		require.Equal(t, http.StatusCreated, w.Code)

		var summary datatypes.ConversationSummary
		decodeBody(t, w, &summary)
		assert.Equal(t, "Playoff questions", summary.Title)
	})

	t.Run("oversized title rejected", func(t *testing.T) {
		router, _ := newConversationRouter(t)

		w := performRequest(router, "POST", "/conversations",
			datatypes.CreateConversationRequest{Title: strings.Repeat("x", 201)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_input", errorKind(t, w))
	})
}

func TestListConversations(t *testing.T) {
	router, store := newConversationRouter(t)
	ctx := context.Background()

	active := seedConversation(t, store)
	archived := seedConversation(t, store)
	require.NoError(t, store.Archive(ctx, archived))

	t.Run("default lists active only", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Conversations []datatypes.ConversationSummary `json:"conversations"`
			Count         int                             `json:"count"`
		}
		decodeBody(t, w, &body)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, active, body.Conversations[0].ID)
		assert.Equal(t, 1, body.Conversations[0].MessageCount)
	})

	t.Run("status filter", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations?status=archived", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Conversations []datatypes.ConversationSummary `json:"conversations"`
		}
		decodeBody(t, w, &body)
		require.Len(t, body.Conversations, 1)
		assert.Equal(t, archived, body.Conversations[0].ID)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("limit above cap rejected", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations?limit=101", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetConversation(t *testing.T) {
	router, store := newConversationRouter(t)
	id := seedConversation(t, store)

	t.Run("found", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var summary datatypes.ConversationSummary
		decodeBody(t, w, &summary)
		assert.Equal(t, id, summary.ID)
		assert.Equal(t, "Who led the league in assists?", summary.Title)
	})

	t.Run("missing is 404", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "conversation_not_found", errorKind(t, w))
	})
}

func TestGetConversationMessages(t *testing.T) {
	router, store := newConversationRouter(t)
	id := seedConversation(t, store)

	w := performRequest(router, "GET", "/conversations/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail datatypes.ConversationDetail
	decodeBody(t, w, &detail)
	assert.Equal(t, id, detail.ID)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, 1, detail.Messages[0].TurnNumber)
	assert.Equal(t, "Who led the league in assists?", detail.Messages[0].Query)
	assert.Equal(t, []string{"mvp_debate.md"}, detail.Messages[0].Sources)
}

func TestUpdateConversation(t *testing.T) {
	t.Run("rename", func(t *testing.T) {
		router, store := newConversationRouter(t)
		id := seedConversation(t, store)

		w := performRequest(router, "PUT", "/conversations/"+id,
			datatypes.UpdateConversationRequest{Title: "Assists deep dive"})
		require.Equal(t, http.StatusOK, w.Code)

		var summary datatypes.ConversationSummary
		decodeBody(t, w, &summary)
		assert.Equal(t, "Assists deep dive", summary.Title)
	})

	t.Run("archive and restore", func(t *testing.T) {
		router, store := newConversationRouter(t)
		id := seedConversation(t, store)

		w := performRequest(router, "PUT", "/conversations/"+id,
			datatypes.UpdateConversationRequest{Status: "archived"})
		require.Equal(t, http.StatusOK, w.Code)
		var summary datatypes.ConversationSummary
		decodeBody(t, w, &summary)
		assert.Equal(t, datatypes.StatusArchived, summary.Status)

		w = performRequest(router, "PUT", "/conversations/"+id,
			datatypes.UpdateConversationRequest{Status: "active"})
		require.Equal(t, http.StatusOK, w.Code)
		decodeBody(t, w, &summary)
		assert.Equal(t, datatypes.StatusActive, summary.Status)
	})

	t.Run("empty update rejected", func(t *testing.T) {
		router, store := newConversationRouter(t)
		id := seedConversation(t, store)

		w := performRequest(router, "PUT", "/conversations/"+id,
			datatypes.UpdateConversationRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deleting via status update rejected", func(t *testing.T) {
		router, store := newConversationRouter(t)
		id := seedConversation(t, store)

		w := performRequest(router, "PUT", "/conversations/"+id,
			datatypes.UpdateConversationRequest{Status: "deleted"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteConversation(t *testing.T) {
	router, store := newConversationRouter(t)
	id := seedConversation(t, store)

	w := performRequest(router, "DELETE", "/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("direct fetch hides deleted", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("messages endpoint hides deleted", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations/"+id+"/messages", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("status filter still reaches deleted", func(t *testing.T) {
		w := performRequest(router, "GET", "/conversations?status=deleted", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Conversations []datatypes.ConversationSummary `json:"conversations"`
		}
		decodeBody(t, w, &body)
		require.Len(t, body.Conversations, 1)
		assert.Equal(t, id, body.Conversations[0].ID)
	})

	t.Run("double delete is 404", func(t *testing.T) {
		w := performRequest(router, "DELETE", "/conversations/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
