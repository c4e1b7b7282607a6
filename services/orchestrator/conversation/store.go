// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation persists multi-turn conversations and their
// interactions.
//
// # Description
//
// The store keeps two tables: conversations (id, title, status,
// timestamps) and interactions (one row per user/assistant turn, numbered
// from 1). Turn numbers are assigned inside a write transaction from
// MAX(turn_number)+1, so concurrent appends to the same conversation
// always produce distinct, contiguous numbers. Reads and writes are
// exposed through the split Reader and Writer capabilities so the
// pipeline can hold exactly the access it needs.
//
// Persistence failures on the append path are the caller's problem to
// soften: the store reports them honestly and the pipeline downgrades
// them to a response warning.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// DefaultHistoryTurns is the history window when the caller passes a
// non-positive limit.
const DefaultHistoryTurns = 5

// titleRuneBudget is how many runes of the first query become the title.
const titleRuneBudget = 47

const schemaDDL = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active'
	           CHECK (status IN ('active', 'archived', 'deleted'))
);

CREATE TABLE IF NOT EXISTS interactions (
	id                 TEXT PRIMARY KEY,
	conversation_id    TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	turn_number        INTEGER NOT NULL CHECK (turn_number >= 1),
	query              TEXT NOT NULL,
	response           TEXT NOT NULL,
	sources            TEXT NOT NULL DEFAULT '[]',
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	UNIQUE (conversation_id, turn_number)
);

CREATE INDEX IF NOT EXISTS idx_interactions_conversation
	ON interactions(conversation_id, turn_number);
`

// =============================================================================
// Store
// =============================================================================

// Config carries the store's tunables.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// HistoryTurns is the default History window. Zero applies 5.
	HistoryTurns int
}

// Store is the SQLite-backed conversation store.
//
// The pool is pinned to a single connection: SQLite allows one writer at a
// time anyway, and a single session keeps the foreign_keys pragma applied
// to every statement while making turn assignment naturally serial.
type Store struct {
	db           *sql.DB
	historyTurns int
}

// Open opens (or creates) the conversation database and ensures the
// schema exists.
//
// # Inputs
//
//   - cfg: Path plus optional history window override.
//
// # Outputs
//
//   - *Store: Ready for use by concurrent requests.
//   - error: Unopenable file or failed schema bootstrap.
func Open(cfg Config) (*Store, error) {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000")
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "open conversation database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, datatypes.WrapError(datatypes.KindInternalError, "enable foreign keys", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, datatypes.WrapError(datatypes.KindInternalError, "bootstrap conversation schema", err)
	}
	return &Store{db: db, historyTurns: cfg.HistoryTurns}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database liveness for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// Writer
// =============================================================================

// Start creates an active conversation with an empty title.
func (s *Store) Start(ctx context.Context) (string, error) {
	id := datatypes.NewID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at, status) VALUES (?, '', ?, ?, ?)`,
		id, now, now, string(datatypes.StatusActive))
	if err != nil {
		return "", datatypes.WrapError(datatypes.KindPersistenceFailure, "create conversation", err)
	}
	return id, nil
}

// Append stores the next turn for a conversation.
//
// # Description
//
// Runs in one write transaction: the turn number is computed as
// MAX(turn_number)+1 within the INSERT itself (a single atomic statement),
// the conversation's updated_at advances, and an empty title is replaced
// by the first words of the query. Appending to a missing or deleted
// conversation is conversation_not_found.
//
// # Outputs
//
//   - int: The assigned turn number, contiguous from 1.
//   - error: conversation_not_found or persistence_failure.
func (s *Store) Append(ctx context.Context, conversationID, query, response string,
	sources []datatypes.SourceAttribution, processingTimeMs int64) (int, error) {

	sourcesJSON, err := json.Marshal(sourceNames(sources))
	if err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "encode sources", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "begin append transaction", err)
	}
	defer tx.Rollback()

	var title string
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT title, status FROM conversations WHERE id = ?`, conversationID).
		Scan(&title, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, datatypes.Errorf(datatypes.KindConversationNotFound,
			"conversation %s does not exist", conversationID)
	}
	if err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "load conversation", err)
	}
	if status == string(datatypes.StatusDeleted) {
		return 0, datatypes.Errorf(datatypes.KindConversationNotFound,
			"conversation %s is deleted", conversationID)
	}

	now := time.Now().UTC()
	var turn int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO interactions
			(id, conversation_id, turn_number, query, response, sources, processing_time_ms, created_at)
		 VALUES (?, ?,
			(SELECT COALESCE(MAX(turn_number), 0) + 1 FROM interactions WHERE conversation_id = ?),
			?, ?, ?, ?, ?)
		 RETURNING turn_number`,
		datatypes.NewID(), conversationID, conversationID,
		query, response, string(sourcesJSON), processingTimeMs, now).
		Scan(&turn)
	if err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "insert interaction", err)
	}

	if title == "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
			deriveTitle(query), now, conversationID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			now, conversationID)
	}
	if err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, datatypes.WrapError(datatypes.KindPersistenceFailure, "commit append", err)
	}
	return turn, nil
}

// =============================================================================
// Reader
// =============================================================================

// Get returns the metadata of one conversation, whatever its status.
// Callers gate on Status themselves; only a missing row is
// conversation_not_found.
func (s *Store) Get(ctx context.Context, conversationID string) (datatypes.ConversationSummary, error) {
	var out datatypes.ConversationSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.title, c.status, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM interactions i WHERE i.conversation_id = c.id)
		 FROM conversations c WHERE c.id = ?`, conversationID).
		Scan(&out.ID, &out.Title, &out.Status, &out.CreatedAt, &out.UpdatedAt, &out.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return out, datatypes.Errorf(datatypes.KindConversationNotFound,
			"conversation %s does not exist", conversationID)
	}
	if err != nil {
		return out, datatypes.WrapError(datatypes.KindInternalError, "load conversation", err)
	}
	return out, nil
}

// History returns the most recent limit turns in increasing turn order.
// limit <= 0 applies the configured default.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = s.historyTurns
	}
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_number, query, response FROM (
			SELECT turn_number, query, response
			FROM interactions WHERE conversation_id = ?
			ORDER BY turn_number DESC LIMIT ?
		 ) ORDER BY turn_number ASC`,
		conversationID, limit)
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "query history", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.TurnNumber, &t.Query, &t.Response); err != nil {
			return nil, datatypes.WrapError(datatypes.KindInternalError, "scan turn", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Messages returns every persisted turn of a conversation in order, as
// served by the messages endpoint.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]datatypes.InteractionRecord, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_number, query, response, sources, processing_time_ms, created_at
		 FROM interactions WHERE conversation_id = ? ORDER BY turn_number ASC`,
		conversationID)
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "query messages", err)
	}
	defer rows.Close()

	var records []datatypes.InteractionRecord
	for rows.Next() {
		var rec datatypes.InteractionRecord
		var sourcesJSON string
		if err := rows.Scan(&rec.TurnNumber, &rec.Query, &rec.Response,
			&sourcesJSON, &rec.ProcessingTimeMs, &rec.CreatedAt); err != nil {
			return nil, datatypes.WrapError(datatypes.KindInternalError, "scan interaction", err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &rec.Sources); err != nil {
			return nil, datatypes.WrapError(datatypes.KindInternalError, "decode sources", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// List returns conversation summaries filtered by status, most recently
// updated first.
func (s *Store) List(ctx context.Context, status datatypes.ConversationStatus, limit int) ([]datatypes.ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.status, c.created_at, c.updated_at, COUNT(i.id)
		 FROM conversations c
		 LEFT JOIN interactions i ON i.conversation_id = c.id
		 WHERE c.status = ?
		 GROUP BY c.id
		 ORDER BY c.updated_at DESC
		 LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "list conversations", err)
	}
	defer rows.Close()

	var out []datatypes.ConversationSummary
	for rows.Next() {
		var c datatypes.ConversationSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, datatypes.WrapError(datatypes.KindInternalError, "scan conversation", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// Lifecycle Updates
// =============================================================================

// Rename replaces the conversation title.
func (s *Store) Rename(ctx context.Context, conversationID, title string) error {
	return s.updateConversation(ctx, conversationID,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), conversationID)
}

// Archive moves a conversation to the archived state.
func (s *Store) Archive(ctx context.Context, conversationID string) error {
	return s.setStatus(ctx, conversationID, datatypes.StatusArchived)
}

// SoftDelete marks a conversation deleted without removing its rows.
func (s *Store) SoftDelete(ctx context.Context, conversationID string) error {
	return s.setStatus(ctx, conversationID, datatypes.StatusDeleted)
}

// Restore returns an archived or deleted conversation to the active state.
func (s *Store) Restore(ctx context.Context, conversationID string) error {
	return s.setStatus(ctx, conversationID, datatypes.StatusActive)
}

func (s *Store) setStatus(ctx context.Context, conversationID string, status datatypes.ConversationStatus) error {
	return s.updateConversation(ctx, conversationID,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), conversationID)
}

func (s *Store) updateConversation(ctx context.Context, conversationID, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return datatypes.WrapError(datatypes.KindPersistenceFailure, "update conversation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return datatypes.WrapError(datatypes.KindPersistenceFailure, "confirm update", err)
	}
	if affected == 0 {
		return datatypes.Errorf(datatypes.KindConversationNotFound,
			"conversation %s does not exist", conversationID)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// deriveTitle takes the first 47 runes of the query, appending "..." only
// when the query was longer. Runes, not bytes, so multi-byte text never
// splits mid-character.
func deriveTitle(query string) string {
	runes := []rune(query)
	if len(runes) <= titleRuneBudget {
		return query
	}
	return string(runes[:titleRuneBudget]) + "..."
}

func sourceNames(sources []datatypes.SourceAttribution) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Source
	}
	return names
}
