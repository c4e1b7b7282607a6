// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// setPlainUX pins terminal output to plain mode for the test's duration.
func setPlainUX(t *testing.T) {
	t.Helper()
	prev := ux.CurrentMode()
	ux.SetMode(ux.ModePlain)
	t.Cleanup(func() { ux.SetMode(prev) })
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

// chatScriptServer answers /chat with the scripted responses in order and
// records every decoded request.
func chatScriptServer(t *testing.T, respond func(call int, req datatypes.ChatRequest, w http.ResponseWriter)) (*httptest.Server, *[]datatypes.ChatRequest) {
	t.Helper()
	requests := &[]datatypes.ChatRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req datatypes.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)
		w.Header().Set("Content-Type", "application/json")
		respond(len(*requests), req, w)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func okChatResponse(w http.ResponseWriter, answer, conversationID string, turn int) {
	json.NewEncoder(w).Encode(datatypes.ChatResponse{
		Answer:           answer,
		Routing:          "vector_only",
		ConversationID:   conversationID,
		TurnNumber:       turn,
		ProcessingTimeMs: 10,
	})
}

func TestRunChatSession_ConversationCarriesOver(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		okChatResponse(w, "answer", "conv-1", call)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("first question\nsecond question\nexit\n")
	err := runChatSession(context.Background(), client, input, chatOptions{ShowSources: true})
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	assert.Empty(t, (*requests)[0].ConversationID, "first turn starts a fresh conversation")
	assert.Equal(t, "conv-1", (*requests)[1].ConversationID, "later turns reuse the server-issued id")
}

func TestRunChatSession_ResumeSendsConversationID(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		okChatResponse(w, "answer", req.ConversationID, 4)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("follow-up\nexit\n")
	err := runChatSession(context.Background(), client, input, chatOptions{
		ConversationID: "conv-resumed",
		K:              5,
		ShowSources:    true,
	})
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, "conv-resumed", (*requests)[0].ConversationID)
	assert.Equal(t, 5, (*requests)[0].K)
}

func TestRunChatSession_ServerErrorKeepsSessionAlive(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		if call == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(datatypes.NewErrorResponse(
				datatypes.NewError(datatypes.KindUpstreamUnavailable, "vector index not loaded")))
			return
		}
		okChatResponse(w, "recovered", "conv-9", 1)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("first\nsecond\nexit\n")
	err := runChatSession(context.Background(), client, input, chatOptions{ShowSources: true})
	require.NoError(t, err, "a failed question must not end the session")
	assert.Len(t, *requests, 2)
}

func TestRunChatSession_EOFEndsCleanly(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		okChatResponse(w, "done", "conv-2", 1)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("only question") // no trailing exit
	err := runChatSession(context.Background(), client, input, chatOptions{ShowSources: true})
	require.NoError(t, err)
	assert.Len(t, *requests, 1)
}

func TestRunChatSession_BlankLinesSkipped(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		okChatResponse(w, "unused", "conv-3", 1)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("\n   \nquit\n")
	err := runChatSession(context.Background(), client, input, chatOptions{})
	require.NoError(t, err)
	assert.Empty(t, *requests)
}

func TestRunChatSession_SourcesSuppressed(t *testing.T) {
	setPlainUX(t)
	srv, requests := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		okChatResponse(w, "answer", "conv-4", 1)
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	input := strings.NewReader("question\nexit\n")
	err := runChatSession(context.Background(), client, input, chatOptions{ShowSources: false})
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	require.NotNil(t, req.IncludeSources, "suppression must be explicit on the wire")
	assert.False(t, *req.IncludeSources)
}

func TestRunChatSession_PrintsAnswerAndWarnings(t *testing.T) {
	setPlainUX(t)
	srv, _ := chatScriptServer(t, func(call int, req datatypes.ChatRequest, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(datatypes.ChatResponse{
			Answer:             "Jokic averaged a triple-double.",
			Routing:            "sql_only",
			ConversationID:     "conv-5",
			TurnNumber:         1,
			PersistenceWarning: "history not persisted",
		})
	})

	client := newAPIClient(srv.URL, 5*time.Second)
	out := captureStdout(t, func() {
		input := strings.NewReader("stat line?\nexit\n")
		err := runChatSession(context.Background(), client, input, chatOptions{ShowSources: true})
		require.NoError(t, err)
	})

	assert.Contains(t, out, "Jokic averaged a triple-double.")
}

func TestFormatSources(t *testing.T) {
	tests := []struct {
		name    string
		sources []datatypes.SourceAttribution
		want    string
	}{
		{
			name:    "single",
			sources: []datatypes.SourceAttribution{{Source: "glossary.md", Score: 82.5}},
			want:    "glossary.md (82.5)",
		},
		{
			name: "multiple joined",
			sources: []datatypes.SourceAttribution{
				{Source: "player_stats.csv", Score: 91.25},
				{Source: "mvp_debate.md", Score: 55.5},
			},
			want: "player_stats.csv (91.2), mvp_debate.md (55.5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSources(tt.sources))
		})
	}
}
