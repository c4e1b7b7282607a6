// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats is the read-only SQLite store behind the SQL retrieval
// path.
//
// # Description
//
// The store executes SELECT statements produced by the SQL generator and
// nothing else: the first significant token must be SELECT and
// multi-statement batches are rejected before touching the database. Every
// query runs under a wall-clock timeout and a hard row cap so a
// pathological generated statement can degrade one request, never the
// process. Schema knowledge (tables, columns, NBA glossary descriptions)
// lives in schema.go and feeds both the generator prompt and the semantic
// sniff.
package stats

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

const (
	defaultMaxConns = 8
	defaultTimeout  = 2 * time.Second
	defaultRowCap   = 1000
)

// Config carries the store's tunables. Zero values fall back to the
// package defaults.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// MaxConns bounds the connection pool.
	MaxConns int
	// Timeout is the per-query wall-clock budget.
	Timeout time.Duration
	// RowCap is the hard maximum of rows returned per query.
	RowCap int
}

// Store wraps a bounded SQLite connection pool with read-only execution
// semantics.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	rowCap  int
}

// Result is the outcome of one executed SELECT.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
	Duration  time.Duration
}

// Empty reports whether the query returned zero rows.
func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Scalar returns the column name and value when the result is exactly one
// row with one column, the shape aggregate queries produce.
func (r Result) Scalar() (string, any, bool) {
	if len(r.Rows) != 1 || len(r.Columns) != 1 {
		return "", nil, false
	}
	col := r.Columns[0]
	return col, r.Rows[0][col], true
}

// Open opens the statistics database with WAL journaling and a bounded
// pool.
//
// # Inputs
//
//   - cfg: Path plus optional pool/timeout/cap overrides.
//
// # Outputs
//
//   - *Store: Ready for Execute calls.
//   - error: Unreachable or unopenable database file.
func Open(cfg Config) (*Store, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = defaultRowCap
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000")
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "open statistics database", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, datatypes.WrapError(datatypes.KindInternalError, "ping statistics database", err)
	}

	return &Store{db: db, timeout: cfg.Timeout, rowCap: cfg.RowCap}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database liveness for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Execute runs one SELECT under the store's timeout and row cap.
//
// # Description
//
// The statement is checked by GuardReadOnly first; violations return
// sql_forbidden_statement without touching the pool. Rows beyond the cap
// are discarded and flagged via Result.Truncated. Column values arrive as
// the driver's native Go types with []byte flattened to string.
//
// # Inputs
//
//   - ctx: Caller context; the per-query timeout is layered on top.
//   - query: A single SELECT statement.
//
// # Outputs
//
//   - Result: Columns, rows, truncation flag and execution duration.
//   - error: sql_forbidden_statement or sql_execution_error.
func (s *Store) Execute(ctx context.Context, query string) (Result, error) {
	if err := GuardReadOnly(query); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, datatypes.WrapError(datatypes.KindSQLExecutionError, "execute statement", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, datatypes.WrapError(datatypes.KindSQLExecutionError, "read columns", err)
	}

	result := Result{Columns: cols}
	for rows.Next() {
		if len(result.Rows) == s.rowCap {
			result.Truncated = true
			break
		}
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, datatypes.WrapError(datatypes.KindSQLExecutionError, "scan row", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(raw[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil && !result.Truncated {
		return Result{}, datatypes.WrapError(datatypes.KindSQLExecutionError, "iterate rows", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// GuardReadOnly enforces the store's two admission rules: the first
// significant token is SELECT, and no second statement hides behind a
// semicolon. Trailing semicolons are tolerated.
func GuardReadOnly(query string) error {
	first := firstToken(query)
	if first == "" {
		return datatypes.NewError(datatypes.KindSQLForbiddenStatement, "empty statement")
	}
	if !strings.EqualFold(first, "SELECT") {
		return datatypes.Errorf(datatypes.KindSQLForbiddenStatement,
			"statement must begin with SELECT, got %q", first)
	}
	if idx := topLevelSemicolon(query); idx >= 0 {
		if rest := stripComments(query[idx+1:]); strings.TrimSpace(rest) != "" {
			return datatypes.NewError(datatypes.KindSQLForbiddenStatement,
				"multi-statement batches are not allowed")
		}
	}
	return nil
}

// topLevelSemicolon returns the index of the first semicolon outside a
// string literal, or -1.
func topLevelSemicolon(query string) int {
	inString := false
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				return i
			}
		}
	}
	return -1
}

// firstToken returns the first significant token, skipping whitespace and
// SQL comments.
func firstToken(query string) string {
	rest := strings.TrimSpace(stripComments(query))
	for i, r := range rest {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';' {
			return rest[:i]
		}
	}
	return rest
}

// stripComments removes -- line comments and /* */ block comments. String
// literals are respected so a quoted "--" survives.
func stripComments(query string) string {
	var out strings.Builder
	out.Grow(len(query))
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case inString:
			out.WriteByte(c)
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
			out.WriteByte(c)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
			out.WriteByte('\n')
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			i += 2
			for i+1 < len(query) && !(query[i] == '*' && query[i+1] == '/') {
				i++
			}
			i++ // skip the trailing '/'
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// normalizeValue flattens driver byte slices to strings; everything else
// passes through.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
