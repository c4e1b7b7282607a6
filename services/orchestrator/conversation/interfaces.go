// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// Turn is one persisted user/assistant exchange, numbered from 1.
type Turn struct {
	TurnNumber int
	Query      string
	Response   string
}

// Reader is the history-reading capability. The pipeline depends on this
// interface, never on the concrete store, so the two capabilities stay
// separable and this package never imports the pipeline.
type Reader interface {
	// History returns the most recent limit turns in increasing turn
	// order. limit <= 0 applies the default of 5.
	History(ctx context.Context, conversationID string, limit int) ([]Turn, error)
	// Get returns the conversation metadata or conversation_not_found.
	Get(ctx context.Context, conversationID string) (datatypes.ConversationSummary, error)
}

// Writer is the appending capability.
type Writer interface {
	// Start creates an active conversation with an empty title and
	// returns its id.
	Start(ctx context.Context) (string, error)
	// Append stores the next turn atomically and returns its number.
	Append(ctx context.Context, conversationID, query, response string,
		sources []datatypes.SourceAttribution, processingTimeMs int64) (int, error)
}

var (
	_ Reader = (*Store)(nil)
	_ Writer = (*Store)(nil)
)
