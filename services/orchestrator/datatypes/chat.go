// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the wire types for the orchestrator service.
//
// This file contains the chat request and response types for the POST /chat
// endpoint. Conversation management types live in conversation.go; the error
// taxonomy lives in errors.go.
package datatypes

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxQueryChars is the maximum query length in characters (runes).
	MaxQueryChars = 2000

	// MaxTopK is the maximum number of retrieval hits a caller may request.
	// Zero means "let the orchestrator choose adaptively".
	MaxTopK = 50
)

// UnavailableAnswer is the literal answer returned when no retrieval path
// produced grounding. Clients match it verbatim, and the catch-all prompt
// template instructs the model to reply with exactly this sentence.
const UnavailableAnswer = "The available context doesn't contain this information."

// =============================================================================
// Routing Labels
// =============================================================================

// Routing identifies which retrieval path(s) contributed to an answer.
//
// The label reflects the effective routing after fallback, not the initial
// classification: a statistical question whose SQL path failed and was
// answered from the vector corpus reports RoutingVectorOnly.
type Routing string

const (
	RoutingSQLOnly    Routing = "sql_only"
	RoutingVectorOnly Routing = "vector_only"
	RoutingHybrid     Routing = "hybrid"
	RoutingUnknown    Routing = "unknown"
)

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest is the request body for POST /chat.
//
// # Description
//
// Carries the user question plus optional retrieval and conversation
// parameters. Validation is explicit and hand-written: the schema is small
// and every bound is load-bearing, so the checks live in Validate rather
// than in struct tags.
//
// # Fields
//
//   - Query: Required. The user question, 1..2000 characters.
//   - K: Optional. Requested number of retrieval hits, 0..50. Zero delegates
//     the choice to the orchestrator's adaptive selection.
//   - ConversationID: Optional. Continues an existing conversation. Must
//     reference a non-deleted conversation; checked against the store by the
//     handler, not here.
//   - TurnNumber: Optional client echo of the expected next turn, >= 1.
//     Informational only; the store assigns the authoritative turn number.
//   - IncludeSources: Optional. Defaults to true via EnsureDefaults.
//
// # Examples
//
//	req := ChatRequest{Query: "Who scored the most points this season?"}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
//
// # Limitations
//
//   - No streaming variant exists; the endpoint is strictly request/response.
type ChatRequest struct {
	Query          string `json:"query"`
	K              int    `json:"k,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TurnNumber     int    `json:"turn_number,omitempty"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
}

// Validate checks every request bound and returns a typed invalid_input
// error naming the first violated field.
//
// Query length is measured in runes so multi-byte text is not penalized.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return NewError(KindInvalidInput, "query must not be empty")
	}
	if n := utf8.RuneCountInString(r.Query); n > MaxQueryChars {
		return Errorf(KindInvalidInput, "query length %d exceeds maximum %d characters", n, MaxQueryChars)
	}
	if r.K < 0 || r.K > MaxTopK {
		return Errorf(KindInvalidInput, "k must be in [0,%d], got %d", MaxTopK, r.K)
	}
	if r.TurnNumber < 0 {
		return Errorf(KindInvalidInput, "turn_number must be >= 1 when set, got %d", r.TurnNumber)
	}
	return nil
}

// EnsureDefaults populates optional fields the client omitted.
func (r *ChatRequest) EnsureDefaults() {
	if r.IncludeSources == nil {
		t := true
		r.IncludeSources = &t
	}
}

// WantsSources reports whether sources should be attached to the response.
// Safe to call before EnsureDefaults; a nil flag means true.
func (r *ChatRequest) WantsSources() bool {
	return r.IncludeSources == nil || *r.IncludeSources
}

// =============================================================================
// Chat Response
// =============================================================================

// SourceAttribution names one cited source with its similarity score.
//
// Score is the index's reported similarity scaled to [0,100].
type SourceAttribution struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// ChatResponse is the response body for POST /chat.
//
// # Fields
//
//   - Answer: The generated answer text. When neither retrieval path
//     produced grounding, this is the literal unavailable sentinel and
//     Sources is empty.
//   - Sources: Cited sources ordered by descending score; at most the
//     effective k entries. Omitted when the request set include_sources
//     to false.
//   - ProcessingTimeMs: Wall-clock duration of the whole pipeline.
//   - Routing: Effective routing label after fallback.
//   - ConversationID: The conversation this turn was appended to.
//   - TurnNumber: The turn number assigned by the store.
//   - PersistenceWarning: Present only when the answer was generated but
//     could not be persisted; the response is still a success.
type ChatResponse struct {
	Answer             string              `json:"answer"`
	Sources            []SourceAttribution `json:"sources"`
	ProcessingTimeMs   int64               `json:"processing_time_ms"`
	Routing            Routing             `json:"routing"`
	ConversationID     string              `json:"conversation_id,omitempty"`
	TurnNumber         int                 `json:"turn_number,omitempty"`
	PersistenceWarning string              `json:"persistence_warning,omitempty"`
}

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the external kind and a human-readable message.
type ErrorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewErrorResponse builds the wire form of a sanitized error.
func NewErrorResponse(err error) ErrorResponse {
	sane := Sanitize(err)
	return ErrorResponse{Error: ErrorBody{Kind: sane.Kind, Message: sane.Message}}
}

// NewID returns a fresh opaque identifier for conversations and turns.
func NewID() string {
	return uuid.NewString()
}
