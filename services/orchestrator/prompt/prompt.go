// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt assembles the generation prompt from retrieval evidence.
//
// # Description
//
// One template exists per classification kind, held as values in a map so
// selection is a lookup, never an if-chain. Every template carries the same
// named slots ({app_name}, {question}, {conversation_history},
// {sql_results}, {context}); the assembler binds only the slots the
// template mentions, so a SQL-only template never sees retrieved chunks
// and a contextual template never sees a SQL block.
//
// Citation discipline lives in the template text: the model is told to tag
// statistical claims with [SQL] and narrative claims with [Source: <name>].
// The assembler does not verify citations at runtime.
package prompt

import (
	"fmt"
	"strings"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/classifier"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
)

const (
	// DefaultAppName is the persona name bound to {app_name}.
	DefaultAppName = "Sports-See"

	// ContextCharBudget caps the rendered {context} slot. Truncation cuts
	// at chunk boundaries, never mid-chunk.
	ContextCharBudget = 8000

	// NoSQLResults is bound to {sql_results} when the SQL path produced
	// nothing usable.
	NoSQLResults = "No results found."

	// NoContext is bound to {context} when retrieval produced no chunks.
	NoContext = "No context retrieved."
)

// =============================================================================
// Templates
// =============================================================================

// Template is one prompt layout. Text is a format string over named slots.
type Template struct {
	Name string
	Text string
}

// templates maps each classification kind to its layout. KindUnknown is
// the catch-all; Select falls back to it for any unlisted kind.
var templates = map[classifier.Kind]Template{
	classifier.KindSQLOnly: {
		Name: "sql_only",
		Text: `You are {app_name}, an assistant for NBA statistics and analysis.

Answer the question using the statistical results below. The results come
directly from the statistics database: when a value appears there, report
it exactly — never claim the data is unavailable while the results block
contains it. Tag every statistical claim with [SQL].

{conversation_history}Statistical results:
{sql_results}

Question: {question}

Answer:`,
	},
	classifier.KindHybrid: {
		Name: "hybrid",
		Text: `You are {app_name}, an assistant for NBA statistics and analysis.

Use BOTH evidence blocks below. Lead with the statistical answer, then
connect it to the surrounding context. Tag numbers with [SQL] and
narrative claims with [Source: <name>]. Every factual claim needs a
citation from one of the blocks.

{conversation_history}Statistical results:
{sql_results}

Context:
{context}

Question: {question}

Answer:`,
	},
	classifier.KindContextual: {
		Name: "contextual",
		Text: `You are {app_name}, an assistant for NBA statistics and analysis.

Give a qualitative answer grounded in the context below. Tag every factual
claim with [Source: <name>]. If the context does not cover the question,
say so plainly instead of speculating.

{conversation_history}Context:
{context}

Question: {question}

Answer:`,
	},
	classifier.KindUnknown: {
		Name: "catch_all",
		Text: `You are {app_name}, an assistant for NBA statistics and analysis.

Answer only from the context below. If the context does not contain the
answer, reply with exactly this sentence and nothing else:
"` + datatypes.UnavailableAnswer + `"

{conversation_history}Context:
{context}

Question: {question}

Answer:`,
	},
}

// Select returns the template for a classification kind, falling back to
// the catch-all for anything unlisted.
func Select(kind classifier.Kind) Template {
	if t, ok := templates[kind]; ok {
		return t
	}
	return templates[classifier.KindUnknown]
}

// =============================================================================
// Assembler
// =============================================================================

// Inputs carries the evidence gathered for one request.
//
// SQLResults holds the pre-formatted SQL block; empty means the SQL path
// did not run or failed. Hits hold retrieval results ordered by descending
// score; nil means the vector path did not run.
type Inputs struct {
	Question   string
	History    []conversation.Turn
	SQLResults string
	Hits       []index.Hit
}

// Assembler binds template slots. Zero values apply the defaults, so the
// zero Assembler is usable.
type Assembler struct {
	AppName       string
	ContextBudget int
}

// New returns an assembler with the given persona name, defaulting the
// context budget.
func New(appName string) *Assembler {
	return &Assembler{AppName: appName}
}

// Assemble renders the prompt for the effective routing kind.
//
// # Inputs
//
//   - kind: The effective classification after fallback, which decides the
//     template and therefore which evidence blocks appear.
//   - in: The question plus whatever evidence the pipeline gathered.
//
// # Outputs
//
//   - string: The full prompt text handed to the chat model.
func (a *Assembler) Assemble(kind classifier.Kind, in Inputs) string {
	appName := a.AppName
	if appName == "" {
		appName = DefaultAppName
	}
	budget := a.ContextBudget
	if budget <= 0 {
		budget = ContextCharBudget
	}

	replacer := strings.NewReplacer(
		"{app_name}", appName,
		"{question}", in.Question,
		"{conversation_history}", renderHistory(in.History),
		"{sql_results}", renderSQLResults(in.SQLResults),
		"{context}", renderContext(in.Hits, budget),
	)
	return replacer.Replace(Select(kind).Text)
}

// =============================================================================
// Slot Rendering
// =============================================================================

// renderHistory produces the conversation block: a header followed by
// alternating User:/Assistant: lines, ending in a blank line so the next
// block starts cleanly. Empty history renders to nothing at all, which
// removes the slot without leaving a stray header.
func renderHistory(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\n", t.Query)
		fmt.Fprintf(&b, "Assistant: %s\n", t.Response)
	}
	b.WriteString("\n")
	return b.String()
}

func renderSQLResults(formatted string) string {
	if strings.TrimSpace(formatted) == "" {
		return NoSQLResults
	}
	return formatted
}

// renderContext concatenates chunk texts under [Source: <name>] headers,
// blank-line separated, truncated to the character budget at chunk
// boundaries. The first chunk is always included even when it alone
// exceeds the budget: an empty context block would be strictly worse.
func renderContext(hits []index.Hit, budget int) string {
	if len(hits) == 0 {
		return NoContext
	}

	var b strings.Builder
	for i, h := range hits {
		block := fmt.Sprintf("[Source: %s]\n%s", h.Chunk.Source, h.Chunk.Text)
		if i > 0 {
			if b.Len()+2+len(block) > budget {
				break
			}
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}
	return b.String()
}
