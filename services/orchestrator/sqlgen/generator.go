// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sqlgen turns a natural-language question into an executed,
// formatted SQL result.
//
// # Description
//
// The generator prompts the chat model at temperature 0 with the schema
// glossary and eight few-shot examples, then pushes the candidate
// statement through a fixed validation pipeline: syntactic sniff, semantic
// sniff against the schema identifiers, execution on the statistics store,
// and empty-result classification. Every failure mode is a tagged Outcome,
// not an error value, so the orchestrator's state machine can branch on
// the tag without unwrapping anything.
package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// generationMaxTokens bounds the SQL reply; a SELECT over this schema
// never comes close.
const generationMaxTokens = 512

// fewShot covers the eight query shapes the generator must handle: top-N,
// COUNT aggregation, AVG aggregation, two-entity comparison, threshold
// filter, named-entity lookup, team aggregation, per-game leader.
var fewShot = []struct {
	Question string
	SQL      string
}{
	{
		"Who scored the most points this season?",
		"SELECT p.name, s.pts FROM players p JOIN player_stats s ON p.id = s.player_id ORDER BY s.pts DESC LIMIT 1",
	},
	{
		"How many players scored over 1000 points?",
		"SELECT COUNT(*) AS player_count FROM player_stats WHERE pts > 1000",
	},
	{
		"What is the average points per game across the league?",
		"SELECT AVG(ppg) AS avg_ppg FROM player_stats",
	},
	{
		"Compare LeBron James and Kevin Durant's scoring.",
		"SELECT p.name, s.pts, s.ppg, s.ts_pct FROM players p JOIN player_stats s ON p.id = s.player_id WHERE p.name IN ('LeBron James', 'Kevin Durant')",
	},
	{
		"Which players averaged more than 25 points per game?",
		"SELECT p.name, s.ppg FROM players p JOIN player_stats s ON p.id = s.player_id WHERE s.ppg > 25 ORDER BY s.ppg DESC",
	},
	{
		"What are Nikola Jokić's stats?",
		"SELECT p.name, s.ppg, s.rpg, s.apg, s.ts_pct FROM players p JOIN player_stats s ON p.id = s.player_id WHERE p.name = 'Nikola Jokić'",
	},
	{
		"Which team has the most wins?",
		"SELECT name, wins FROM teams ORDER BY wins DESC LIMIT 1",
	},
	{
		"Who leads the league in assists per game?",
		"SELECT p.name, s.apg FROM players p JOIN player_stats s ON p.id = s.player_id ORDER BY s.apg DESC LIMIT 1",
	},
}

// Generator owns the text-to-SQL path: prompt construction, validation and
// execution.
type Generator struct {
	llm    llm.LLMClient
	store  *stats.Store
	schema stats.SchemaDescription
	logger *slog.Logger
}

// Outcome is the tagged result of one SQL attempt. Exactly one of three
// states holds: success (Executed && !Failed && !EmptyButValid),
// empty-but-valid (Executed && EmptyButValid), or failed (Failed with
// FailKind set).
type Outcome struct {
	// SQL is the candidate statement after fence stripping; empty when
	// generation itself failed.
	SQL string
	// Executed reports whether the statement reached the store and ran.
	Executed bool
	// Rows holds the raw result rows when executed.
	Rows []map[string]any
	// Formatted is the prompt-ready rendering of the rows.
	Formatted string
	// Failed marks any validation or execution failure.
	Failed bool
	// FailKind is the internal error kind when Failed or EmptyButValid.
	FailKind datatypes.ErrorKind
	// EmptyButValid marks a well-formed statement that returned zero rows
	// for a high-confidence statistical question.
	EmptyButValid bool
	// Duration covers generation through execution.
	Duration time.Duration
}

// New builds a Generator over the given model client and statistics store.
func New(client llm.LLMClient, store *stats.Store, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: client, store: store, schema: stats.Describe(), logger: logger}
}

// Run executes the full text-to-SQL pipeline for one question.
//
// # Description
//
// Stages run in order: generate, syntactic sniff, semantic sniff, execute,
// empty-result classification. The first failing stage stamps the Outcome
// with its kind and stops. highConfidence tells the empty-result stage
// whether the question was classified statistical strongly enough that
// zero rows should be treated as "empty-but-valid" rather than a plain
// empty success.
//
// # Inputs
//
//   - ctx: Request context; bounds the model call and the execution.
//   - question: The user's question, verbatim.
//   - highConfidence: Classification confidence >= the trust threshold.
//
// # Outputs
//
//   - Outcome: Tagged result; never an error.
func (g *Generator) Run(ctx context.Context, question string, highConfidence bool) (out Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	candidate, err := g.Generate(ctx, question)
	if err != nil {
		g.logger.Warn("SQL generation failed", "error", err)
		out.Failed = true
		out.FailKind = datatypes.KindSQLExecutionError
		return out
	}
	out.SQL = candidate

	if err := SniffSyntax(candidate); err != nil {
		g.logger.Warn("Generated SQL failed syntactic sniff", "sql", candidate, "error", err)
		out.Failed = true
		out.FailKind = datatypes.KindOf(err)
		return out
	}
	if err := SniffIdentifiers(candidate, g.schema); err != nil {
		g.logger.Warn("Generated SQL failed semantic sniff", "sql", candidate, "error", err)
		out.Failed = true
		out.FailKind = datatypes.KindOf(err)
		return out
	}

	res, err := g.store.Execute(ctx, candidate)
	if err != nil {
		g.logger.Warn("Generated SQL failed execution", "sql", candidate, "error", err)
		out.Failed = true
		out.FailKind = datatypes.KindOf(err)
		return out
	}
	out.Executed = true
	out.Rows = res.Rows
	out.Formatted = FormatResult(res)

	if res.Empty() && highConfidence {
		out.EmptyButValid = true
		out.FailKind = datatypes.KindSQLEmptyResult
	}
	return out
}

// Generate asks the model for a single SELECT statement and strips any
// code fences from the reply. The statement is not validated here.
func (g *Generator) Generate(ctx context.Context, question string) (string, error) {
	reply, err := g.llm.Generate(ctx, g.buildPrompt(question), llm.GenerationParams{
		Temperature: llm.Float32Ptr(0),
		MaxTokens:   llm.IntPtr(generationMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("generate SQL: %w", err)
	}
	return stripFences(reply), nil
}

func (g *Generator) buildPrompt(question string) string {
	var b strings.Builder
	b.WriteString("You translate basketball questions into a single SQLite SELECT statement.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Respond with exactly one SELECT statement and nothing else.\n")
	b.WriteString("- Never use INSERT, UPDATE, DELETE, DROP, ALTER, ATTACH or PRAGMA.\n")
	b.WriteString("- Only reference tables and columns from the schema below.\n")
	b.WriteString("- Use single quotes for string literals.\n")
	b.WriteString("- Percentage columns are stored as fractions in [0,1].\n\n")
	b.WriteString("Schema:\n")
	b.WriteString(g.schema.Render())
	b.WriteString("\nExamples:\n")
	for _, ex := range fewShot {
		fmt.Fprintf(&b, "Question: %s\nSQL: %s\n\n", ex.Question, ex.SQL)
	}
	fmt.Fprintf(&b, "Question: %s\nSQL:", question)
	return b.String()
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || strings.EqualFold(firstLine, "sql") || strings.EqualFold(firstLine, "sqlite") {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
