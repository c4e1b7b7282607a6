// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs the retrieval state machine for one chat request.
//
// # Description
//
// States run in order: CLASSIFY -> SQL_ATTEMPT -> VECTOR_ATTEMPT ->
// ASSEMBLE -> GENERATE -> PERSIST. The fallback edges are:
//
//   - UNKNOWN classification with a conversation prepends the most recent
//     user turn and reclassifies once; a second UNKNOWN routes like
//     CONTEXTUAL under the catch-all template.
//   - A failed or empty-but-valid SQL attempt on a SQL_ONLY query degrades
//     to the vector path instead of failing the request.
//   - When neither path produced grounding, the response is the literal
//     unavailable sentinel with empty sources and routing "unknown"; that
//     is a success, not an error. A model reply that is exactly the
//     sentinel is normalized to the same shape: no sources, routing
//     "unknown".
//
// SQL failures are tagged results, never errors: the state machine
// inspects the tag and transitions. Only the embedding provider (when the
// vector path is the last option), the chat model (after retries), and
// the request deadline can fail a request.
//
// The pipeline owns all per-request mutable state. Shared components (the
// index provider, the statistics store, the embedder, the chat client)
// are read-only from its perspective and safe for concurrent requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shah-data-scientist/Sports-See-sub000/services/embedding"
	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/classifier"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/observability"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/prompt"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/sqlgen"
)

// UnavailableAnswer is the sentinel answer for ungrounded requests,
// re-exported from datatypes for callers of this package.
const UnavailableAnswer = datatypes.UnavailableAnswer

// Generation retry policy: up to three attempts against the chat model,
// exponential delays between them, each attempt individually bounded.
var generateRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

const (
	maxGenerateAttempts    = 3
	defaultAttemptTimeout  = 30 * time.Second
	defaultMaxOutputTokens = 2048
	defaultTemperature     = 0.1
)

// =============================================================================
// Construction
// =============================================================================

// Config wires the pipeline's dependencies and generation knobs.
//
// # Fields
//
//   - SQL: Text-to-SQL generator; required.
//   - Index: Provider of the live vector index; required.
//   - Embedder: Query embedding client; required.
//   - Chat: Answer generation model; required.
//   - Reader / Writer: Split conversation capabilities; both required.
//     The split keeps history reads and turn appends separately mockable
//     and stops the conversation package from ever importing this one.
//   - Assembler: Prompt assembler; nil gets a default.
//   - Metrics: Pipeline metrics; nil disables recording.
//   - Logger: Structured logger; nil falls back to slog.Default.
//   - Temperature / MaxTokens / HistoryTurns / AttemptTimeout: Generation
//     knobs; zero values apply the documented defaults.
type Config struct {
	SQL      *sqlgen.Generator
	Index    *index.Provider
	Embedder embedding.Embedder
	Chat     llm.LLMClient
	Reader   conversation.Reader
	Writer   conversation.Writer

	Assembler *prompt.Assembler
	Metrics   *observability.Metrics
	Logger    *slog.Logger

	Temperature    float64
	MaxTokens      int
	HistoryTurns   int
	AttemptTimeout time.Duration
}

// Pipeline executes chat requests. Safe for concurrent use; all mutable
// state is per-call.
type Pipeline struct {
	sql      *sqlgen.Generator
	index    *index.Provider
	embedder embedding.Embedder
	chat     llm.LLMClient
	reader   conversation.Reader
	writer   conversation.Writer

	assembler *prompt.Assembler
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	temperature    float64
	maxTokens      int
	historyTurns   int
	attemptTimeout time.Duration
}

// New validates the wiring and returns a ready pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.SQL == nil:
		return nil, fmt.Errorf("pipeline requires a SQL generator")
	case cfg.Index == nil:
		return nil, fmt.Errorf("pipeline requires an index provider")
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("pipeline requires an embedder")
	case cfg.Chat == nil:
		return nil, fmt.Errorf("pipeline requires a chat client")
	case cfg.Reader == nil || cfg.Writer == nil:
		return nil, fmt.Errorf("pipeline requires conversation reader and writer")
	}

	if cfg.Assembler == nil {
		cfg.Assembler = prompt.New(prompt.DefaultAppName)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxOutputTokens
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = conversation.DefaultHistoryTurns
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}

	return &Pipeline{
		sql:            cfg.SQL,
		index:          cfg.Index,
		embedder:       cfg.Embedder,
		chat:           cfg.Chat,
		reader:         cfg.Reader,
		writer:         cfg.Writer,
		assembler:      cfg.Assembler,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer("sportsee/pipeline"),
		logger:         cfg.Logger,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		historyTurns:   cfg.HistoryTurns,
		attemptTimeout: cfg.AttemptTimeout,
	}, nil
}

// =============================================================================
// Entry Point
// =============================================================================

// Answer runs the full state machine for one validated request.
//
// # Inputs
//
//   - ctx: Carries the per-request deadline; every external call inherits
//     it.
//   - req: A request that already passed datatypes.ChatRequest.Validate
//     and whose conversation id, if any, resolves to a live conversation.
//
// # Outputs
//
//   - datatypes.ChatResponse: The answer, sources, routing label, timing
//     and persistence outcome.
//   - error: Typed; only upstream_unavailable, deadline_exceeded or
//     internal_error ever surface here.
func (p *Pipeline) Answer(ctx context.Context, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	start := time.Now()
	p.metrics.RequestStarted()
	defer p.metrics.RequestEnded()

	ctx, span := p.tracer.Start(ctx, "pipeline.answer")
	defer span.End()

	resp, err := p.run(ctx, req, start)
	if err != nil {
		span.SetAttributes(attribute.String("sportsee.error_kind", string(datatypes.KindOf(err))))
		p.metrics.RecordRequest(string(datatypes.RoutingUnknown), false)
		return datatypes.ChatResponse{}, err
	}

	span.SetAttributes(
		attribute.String("sportsee.routing", string(resp.Routing)),
		attribute.Int("sportsee.sources", len(resp.Sources)),
	)
	p.metrics.RecordRequest(string(resp.Routing), true)
	return resp, nil
}

// run holds the state machine proper; Answer wraps it with metrics and
// the request span.
func (p *Pipeline) run(ctx context.Context, req datatypes.ChatRequest, start time.Time) (datatypes.ChatResponse, error) {
	// CLASSIFY
	cls, effectiveQuery := p.classify(ctx, req)

	// SQL_ATTEMPT
	var sqlOut sqlgen.Outcome
	sqlAttempted := cls.Kind == classifier.KindSQLOnly || cls.Kind == classifier.KindHybrid
	if sqlAttempted {
		sqlOut = p.sqlAttempt(ctx, effectiveQuery, cls)
	}
	sqlFailed := sqlAttempted && (sqlOut.Failed || sqlOut.EmptyButValid)
	sqlGrounded := sqlAttempted && !sqlFailed

	// VECTOR_ATTEMPT: entered for contextual and hybrid routes, and as
	// the fallback edge when the SQL path failed.
	var hits []index.Hit
	needVector := cls.Kind == classifier.KindContextual ||
		cls.Kind == classifier.KindHybrid ||
		cls.Kind == classifier.KindUnknown ||
		sqlFailed
	if needVector {
		var err error
		hits, err = p.vectorAttempt(ctx, effectiveQuery, req.K)
		if err != nil {
			// With a grounded SQL result in hand the request can still be
			// answered; without one the vector path was the last option.
			if !sqlGrounded {
				return datatypes.ChatResponse{}, err
			}
			p.logger.Warn("vector path failed, continuing on SQL grounding", "error", err)
			hits = nil
		}
	}

	// Effective routing after fallback.
	templateKind, routing := effective(cls.Kind, sqlGrounded, len(hits) > 0)

	if routing == datatypes.RoutingUnknown {
		// Nothing grounded the question; answer with the sentinel instead
		// of letting the model improvise. Still a success, still persisted.
		p.logger.Info("no grounding found",
			"classification", cls.Kind, "sql_attempted", sqlAttempted, "hits", len(hits))
		return p.finish(ctx, req, start, UnavailableAnswer, nil, routing), nil
	}

	// ASSEMBLE
	assembleCtx, assembleSpan := p.tracer.Start(ctx, "pipeline.assemble")
	stopAssemble := p.metrics.StageTimer(observability.StageAssemble)
	promptText := p.assembler.Assemble(templateKind, prompt.Inputs{
		Question:   req.Query,
		History:    p.history(assembleCtx, req.ConversationID),
		SQLResults: sqlResultsFor(templateKind, sqlOut),
		Hits:       hitsFor(templateKind, hits),
	})
	stopAssemble()
	assembleSpan.End()

	// GENERATE
	answer, err := p.generate(ctx, promptText)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}

	// A verbatim sentinel means the model declined from the provided
	// context. Citing sources under a declared non-answer would contradict
	// it, so the response is normalized to the ungrounded shape.
	if answer == UnavailableAnswer {
		p.logger.Info("model declined with the unavailable sentinel",
			"classification", cls.Kind, "routing", routing)
		return p.finish(ctx, req, start, answer, nil, datatypes.RoutingUnknown), nil
	}

	return p.finish(ctx, req, start, answer, sourcesFrom(hits, routing), routing), nil
}

// finish persists the turn and assembles the response. Persistence
// failures downgrade to a warning on an otherwise successful response.
func (p *Pipeline) finish(ctx context.Context, req datatypes.ChatRequest, start time.Time,
	answer string, sources []datatypes.SourceAttribution, routing datatypes.Routing) datatypes.ChatResponse {

	resp := datatypes.ChatResponse{
		Answer:           answer,
		Routing:          routing,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if req.WantsSources() {
		resp.Sources = sources
		if resp.Sources == nil {
			resp.Sources = []datatypes.SourceAttribution{}
		}
	}

	convID, turn, warning := p.persist(ctx, req, answer, sources, time.Since(start).Milliseconds())
	resp.ConversationID = convID
	resp.TurnNumber = turn
	resp.PersistenceWarning = warning
	return resp
}

// =============================================================================
// Routing Table
// =============================================================================

// effective maps (initial kind, SQL grounded, hits present) to the
// template kind and the routing label recorded on the response.
//
// The routing label reflects what actually grounded the answer, not what
// the classifier wanted: a SQL_ONLY question saved by the vector fallback
// reports vector_only, and an UNKNOWN that found context keeps the
// catch-all template but reports vector_only too.
func effective(kind classifier.Kind, sqlGrounded, hasHits bool) (classifier.Kind, datatypes.Routing) {
	switch kind {
	case classifier.KindSQLOnly:
		if sqlGrounded {
			return classifier.KindSQLOnly, datatypes.RoutingSQLOnly
		}
		if hasHits {
			return classifier.KindContextual, datatypes.RoutingVectorOnly
		}
	case classifier.KindHybrid:
		switch {
		case sqlGrounded && hasHits:
			return classifier.KindHybrid, datatypes.RoutingHybrid
		case sqlGrounded:
			return classifier.KindSQLOnly, datatypes.RoutingSQLOnly
		case hasHits:
			return classifier.KindContextual, datatypes.RoutingVectorOnly
		}
	case classifier.KindContextual:
		if hasHits {
			return classifier.KindContextual, datatypes.RoutingVectorOnly
		}
	case classifier.KindUnknown:
		if hasHits {
			return classifier.KindUnknown, datatypes.RoutingVectorOnly
		}
	}
	return classifier.KindUnknown, datatypes.RoutingUnknown
}

// sqlResultsFor feeds the SQL block only to templates that bind it.
func sqlResultsFor(kind classifier.Kind, out sqlgen.Outcome) string {
	if kind != classifier.KindSQLOnly && kind != classifier.KindHybrid {
		return ""
	}
	return out.Formatted
}

// hitsFor feeds retrieved chunks only to templates that bind them.
func hitsFor(kind classifier.Kind, hits []index.Hit) []index.Hit {
	if kind == classifier.KindSQLOnly {
		return nil
	}
	return hits
}

// sourcesFrom converts hits to response attributions, deduplicated by
// source name keeping the best score. SQL-only answers cite no sources.
func sourcesFrom(hits []index.Hit, routing datatypes.Routing) []datatypes.SourceAttribution {
	if routing == datatypes.RoutingSQLOnly || routing == datatypes.RoutingUnknown {
		return nil
	}
	seen := make(map[string]bool, len(hits))
	out := make([]datatypes.SourceAttribution, 0, len(hits))
	for _, h := range hits {
		if seen[h.Chunk.Source] {
			continue
		}
		seen[h.Chunk.Source] = true
		out = append(out, datatypes.SourceAttribution{Source: h.Chunk.Source, Score: h.Score})
	}
	return out
}

// ctxKind maps a context error to the matching external kind.
func ctxKind(err error) datatypes.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return datatypes.KindDeadlineExceeded
	}
	return datatypes.KindInternalError
}

// trimAnswer strips model whitespace and the occasional leading "Answer:".
func trimAnswer(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "Answer:")
	return strings.TrimSpace(reply)
}
