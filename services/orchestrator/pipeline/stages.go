// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/classifier"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/observability"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/sqlgen"
)

// =============================================================================
// CLASSIFY
// =============================================================================

// classify decides the route for the request.
//
// # Description
//
// An UNKNOWN result on a continued conversation gets one retry: the most
// recent user turn is prepended (single space separated) and the combined
// text reclassified, which resolves pronoun follow-ups like "what about
// his assists". When the retry lands, the augmented query also becomes
// the effective query for the retrieval stages: the raw query carried no
// usable signal on its own.
func (p *Pipeline) classify(ctx context.Context, req datatypes.ChatRequest) (classifier.Classification, string) {
	ctx, span := p.tracer.Start(ctx, "pipeline.classify")
	defer span.End()
	defer p.metrics.StageTimer(observability.StageClassify)()

	cls := classifier.Classify(req.Query)
	effectiveQuery := req.Query

	if cls.Kind == classifier.KindUnknown && req.ConversationID != "" {
		turns, err := p.reader.History(ctx, req.ConversationID, 1)
		if err != nil {
			p.logger.Warn("history lookup for reclassification failed",
				"conversation_id", req.ConversationID, "error", err)
		} else if len(turns) > 0 {
			augmented := turns[len(turns)-1].Query + " " + req.Query
			if again := classifier.Classify(augmented); again.Kind != classifier.KindUnknown {
				p.logger.Debug("reclassified with conversation context",
					"kind", again.Kind, "confidence", again.Confidence)
				cls = again
				effectiveQuery = augmented
			}
		}
	}

	span.SetAttributes(
		attribute.String("sportsee.classification", string(cls.Kind)),
		attribute.Float64("sportsee.confidence", cls.Confidence),
	)
	p.metrics.RecordClassification(string(cls.Kind))
	p.logger.Info("query classified",
		"kind", cls.Kind,
		"confidence", cls.Confidence,
		"reason", cls.Reason,
	)
	return cls, effectiveQuery
}

// =============================================================================
// SQL_ATTEMPT
// =============================================================================

// sqlAttempt runs the text-to-SQL pipeline. Failures come back as a
// tagged Outcome, never an error; the caller inspects the tag.
func (p *Pipeline) sqlAttempt(ctx context.Context, query string, cls classifier.Classification) sqlgen.Outcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.sql_attempt")
	defer span.End()
	defer p.metrics.StageTimer(observability.StageSQL)()

	out := p.sql.Run(ctx, query, cls.HighConfidence())

	span.SetAttributes(
		attribute.Bool("sportsee.sql_executed", out.Executed),
		attribute.Bool("sportsee.sql_failed", out.Failed || out.EmptyButValid),
	)
	if out.Failed || out.EmptyButValid {
		span.SetAttributes(attribute.String("sportsee.sql_fail_kind", string(out.FailKind)))
		p.metrics.RecordSQLFallback(string(out.FailKind))
		p.logger.Info("SQL path failed, falling back",
			"kind", out.FailKind, "executed", out.Executed, "duration_ms", out.Duration.Milliseconds())
	}
	return out
}

// =============================================================================
// VECTOR_ATTEMPT
// =============================================================================

// vectorAttempt embeds the query and searches the live index.
//
// # Outputs
//
//   - []index.Hit: Quality-filtered hits in descending score order; may be
//     empty, which the caller treats as "no grounding", not an error.
//   - error: upstream_unavailable when embedding failed, deadline_exceeded
//     when the request ran out of time, internal_error on a search fault.
func (p *Pipeline) vectorAttempt(ctx context.Context, query string, requestedK int) ([]index.Hit, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.vector_attempt")
	defer span.End()
	defer p.metrics.StageTimer(observability.StageVector)()

	k := requestedK
	if k <= 0 {
		k = classifier.AdaptiveK(query)
	}
	span.SetAttributes(attribute.Int("sportsee.k", k))

	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, datatypes.WrapError(ctxKind(ctx.Err()), "request expired during embedding", err)
		}
		return nil, datatypes.WrapError(datatypes.KindUpstreamUnavailable, "embedding provider failed", err)
	}

	idx := p.index.Current()
	hits, err := idx.Search(vec, k, nil)
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "index search failed", err)
	}
	if len(hits) == 0 && idx.Size() > 0 {
		// Tagged for the error taxonomy but never surfaced: no hits just
		// means no vector grounding, and the caller decides what that
		// costs the request.
		p.logger.Warn("vector retrieval returned nothing",
			"error", datatypes.NewError(datatypes.KindVectorFilteredAll,
				"quality filter rejected every candidate"))
	}

	span.SetAttributes(attribute.Int("sportsee.hits", len(hits)))
	p.metrics.ObserveRetrievalHits(len(hits))
	p.logger.Info("vector search completed", "k", k, "hits", len(hits))
	return hits, nil
}

// history loads the conversation window for the prompt. Best effort: a
// read failure just means the prompt carries no history.
func (p *Pipeline) history(ctx context.Context, conversationID string) []conversation.Turn {
	if conversationID == "" {
		return nil
	}
	turns, err := p.reader.History(ctx, conversationID, p.historyTurns)
	if err != nil {
		p.logger.Warn("history lookup failed, assembling without it",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	return turns
}

// =============================================================================
// GENERATE
// =============================================================================

// generate calls the chat model with retries on transient failures.
//
// # Description
//
// Up to three attempts, each bounded by the attempt timeout; delays of
// 1s then 2s between attempts, skipped the moment the request deadline
// expires. Non-retryable provider errors stop immediately. Exhaustion
// maps to upstream_unavailable.
func (p *Pipeline) generate(ctx context.Context, promptText string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	defer p.metrics.StageTimer(observability.StageGenerate)()

	params := llm.GenerationParams{
		Temperature: llm.Float32Ptr(float32(p.temperature)),
		MaxTokens:   llm.IntPtr(p.maxTokens),
	}

	var lastErr error
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		if attempt > 1 {
			p.metrics.RecordGenerationRetry()
			select {
			case <-ctx.Done():
				return "", datatypes.WrapError(ctxKind(ctx.Err()),
					"request expired before generation retry", ctx.Err())
			case <-time.After(generateRetryDelays[attempt-2]):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		reply, err := p.chat.Generate(attemptCtx, promptText, params)
		cancel()

		if err == nil {
			span.SetAttributes(attribute.Int("sportsee.attempts", attempt))
			return trimAnswer(reply), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", datatypes.WrapError(ctxKind(ctx.Err()),
				"request expired during generation", err)
		}
		if !llm.IsRetryable(err) {
			p.logger.Warn("generation failed with non-retryable error", "error", err)
			break
		}
		p.logger.Warn("generation attempt failed, retrying",
			"attempt", attempt, "error", err)
	}
	return "", datatypes.WrapError(datatypes.KindUpstreamUnavailable,
		"chat model unavailable after retries", lastErr)
}

// =============================================================================
// PERSIST
// =============================================================================

// persist appends the turn, creating the conversation lazily when the
// request carried no id. Every failure downgrades to a warning string;
// the answer has already been produced and belongs to the caller.
func (p *Pipeline) persist(ctx context.Context, req datatypes.ChatRequest,
	answer string, sources []datatypes.SourceAttribution, elapsedMs int64) (string, int, string) {

	ctx, span := p.tracer.Start(ctx, "pipeline.persist")
	defer span.End()
	defer p.metrics.StageTimer(observability.StagePersist)()

	const warning = "response could not be persisted"

	conversationID := req.ConversationID
	if conversationID == "" {
		id, err := p.writer.Start(ctx)
		if err != nil {
			p.logger.Error("conversation creation failed", "error", err)
			return "", 0, warning
		}
		conversationID = id
	}

	turn, err := p.writer.Append(ctx, conversationID, req.Query, answer, sources, elapsedMs)
	if err != nil {
		p.logger.Error("interaction append failed",
			"conversation_id", conversationID, "error", err)
		return conversationID, 0, warning
	}

	span.SetAttributes(attribute.Int("sportsee.turn", turn))
	return conversationID, turn, ""
}
