// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/classifier"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/observability"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/sqlgen"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeEmbedder returns one fixed unit vector for every text.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.EmbedQuery(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dim() int { return len(f.vec) }

// chatStep is one scripted model response.
type chatStep struct {
	reply string
	err   error
}

// scriptedChat replays a fixed script and records every prompt it saw.
type scriptedChat struct {
	mu      sync.Mutex
	steps   []chatStep
	prompts []string
}

func (c *scriptedChat) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.steps) == 0 {
		return "", errors.New("chat script exhausted")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.reply, step.err
}

func (c *scriptedChat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func (c *scriptedChat) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

// failingAppendWriter wraps a real writer but refuses every append.
type failingAppendWriter struct {
	conversation.Writer
}

func (failingAppendWriter) Append(context.Context, string, string, string, []datatypes.SourceAttribution, int64) (int, error) {
	return 0, errors.New("disk full")
}

// =============================================================================
// Fixture
// =============================================================================

const fixtureDim = 3

var fixtureChunks = []index.Chunk{
	{
		ID:       "c1",
		Source:   "home_court.md",
		Text:     "Fans argue that home court advantage swings playoff games because loud crowds disrupt visiting teams.",
		Metadata: map[string]string{"data_type": "discussion"},
	},
	{
		ID:       "c2",
		Source:   "mvp_debate.md",
		Text:     "The MVP debate this season pits scoring volume against all-around efficiency and team success.",
		Metadata: map[string]string{"data_type": "discussion"},
	},
	{
		ID:       "c3",
		Source:   "playing_styles.md",
		Text:     "Jokic orchestrates the offense from the post while Embiid overwhelms defenders with physical scoring.",
		Metadata: map[string]string{"data_type": "discussion"},
	},
}

func fixtureVectors() [][]float32 {
	return [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

type fixture struct {
	pipe    *Pipeline
	sqlChat *scriptedChat
	genChat *scriptedChat
	store   *conversation.Store
	metrics *observability.Metrics
	reg     *prometheus.Registry
}

type fixtureOpts struct {
	embedErr         error
	qualityThreshold float64
	failAppend       bool
	sqlReply         string
	genSteps         []chatStep
	logger           *slog.Logger
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	statsStore, err := stats.Open(stats.Config{Path: filepath.Join(t.TempDir(), "stats.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = statsStore.Close() })
	require.NoError(t, statsStore.SeedDemo(context.Background()))

	sqlChat := &scriptedChat{}
	if opts.sqlReply != "" {
		// The generator asks once per request; repeat the reply generously.
		for i := 0; i < 8; i++ {
			sqlChat.steps = append(sqlChat.steps, chatStep{reply: opts.sqlReply})
		}
	}
	generator := sqlgen.New(sqlChat, statsStore, nil)

	idx, err := index.New(fixtureVectors(), fixtureChunks, "test-v1",
		index.Options{QualityThreshold: opts.qualityThreshold})
	require.NoError(t, err)

	convStore, err := conversation.Open(conversation.Config{
		Path: filepath.Join(t.TempDir(), "conversations.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = convStore.Close() })

	var writer conversation.Writer = convStore
	if opts.failAppend {
		writer = failingAppendWriter{Writer: convStore}
	}

	genChat := &scriptedChat{steps: opts.genSteps}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	pipe, err := New(Config{
		SQL:      generator,
		Index:    index.NewProvider(idx),
		Embedder: &fakeEmbedder{vec: []float32{1, 0, 0}, err: opts.embedErr},
		Chat:     genChat,
		Reader:   convStore,
		Writer:   writer,
		Metrics:  metrics,
		Logger:   opts.logger,
	})
	require.NoError(t, err)

	return &fixture{
		pipe:    pipe,
		sqlChat: sqlChat,
		genChat: genChat,
		store:   convStore,
		metrics: metrics,
		reg:     reg,
	}
}

const topScorerSQL = "```sql\nSELECT p.name, s.pts FROM players p JOIN player_stats s ON p.id = s.player_id ORDER BY s.pts DESC LIMIT 1\n```"

// =============================================================================
// Routing Scenarios
// =============================================================================

func TestAnswer_SQLOnly(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		sqlReply: topScorerSQL,
		genSteps: []chatStep{{reply: "Shai Gilgeous-Alexander led the league with 2484 points. [SQL]"}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "Who scored the most points this season?",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RoutingSQLOnly, resp.Routing)
	assert.Contains(t, resp.Answer, "Shai Gilgeous-Alexander")
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.ConversationID, "conversation is created lazily")
	assert.Equal(t, 1, resp.TurnNumber)
	assert.Empty(t, resp.PersistenceWarning)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMs, int64(0))

	// The generation prompt carried the SQL block, not retrieved context.
	prompt := f.genChat.lastPrompt()
	assert.Contains(t, prompt, "Statistical results:")
	assert.Contains(t, prompt, "Shai Gilgeous-Alexander")
	assert.NotContains(t, prompt, "[Source:")

	// The turn is persisted with the assigned number.
	records, err := f.store.Messages(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Who scored the most points this season?", records[0].Query)
}

func TestAnswer_SQLFallsBackToVector(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		sqlReply: "I am not able to write SQL for that question.",
		genSteps: []chatStep{{reply: "The crowd noise matters. [Source: home_court.md]"}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "Who scored the most points this season?",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RoutingVectorOnly, resp.Routing)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "home_court.md", resp.Sources[0].Source)

	// Sources are ordered by descending score.
	for i := 1; i < len(resp.Sources); i++ {
		assert.GreaterOrEqual(t, resp.Sources[i-1].Score, resp.Sources[i].Score)
	}

	// The prompt downgraded to the contextual template.
	prompt := f.genChat.lastPrompt()
	assert.Contains(t, prompt, "[Source: home_court.md]")
	assert.NotContains(t, prompt, "Statistical results:")
}

func TestAnswer_HybridCarriesBothBlocks(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		sqlReply: "```sql\nSELECT p.name, s.ppg FROM players p JOIN player_stats s ON p.id = s.player_id WHERE p.name IN ('Nikola Jokić', 'Joel Embiid')\n```",
		genSteps: []chatStep{{reply: "Jokic averages 29.6 [SQL] while orchestrating from the post [Source: playing_styles.md]."}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "Compare Jokić and Embiid's stats and explain which one is more valuable based on their playing style.",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RoutingHybrid, resp.Routing)
	assert.NotEmpty(t, resp.Sources)

	prompt := f.genChat.lastPrompt()
	assert.Contains(t, prompt, "Statistical results:")
	assert.Contains(t, prompt, "Context:")
	assert.Contains(t, prompt, "[Source:")
}

func TestAnswer_ContextualSkipsSQL(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{reply: "Fans credit the crowd. [Source: home_court.md]"}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RoutingVectorOnly, resp.Routing)
	assert.Zero(t, f.sqlChat.callCount(), "SQL generator must not be consulted")
	assert.NotEmpty(t, resp.Sources)
}

func TestAnswer_UngroundedReturnsSentinel(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		// A threshold no chunk can reach empties every search.
		qualityThreshold: 0.99,
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)

	assert.Equal(t, UnavailableAnswer, resp.Answer)
	assert.Equal(t, datatypes.RoutingUnknown, resp.Routing)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, f.genChat.callCount(), "no model call for an ungrounded answer")

	// The sentinel turn is still a real turn.
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, 1, resp.TurnNumber)
}

func TestAnswer_FilteredOutSearchLogsVectorFilteredAll(t *testing.T) {
	var logs bytes.Buffer
	f := newFixture(t, fixtureOpts{
		qualityThreshold: 0.99,
		logger:           slog.New(slog.NewTextHandler(&logs, nil)),
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)

	// The all-filtered case resolves as the ungrounded sentinel, but the
	// internal taxonomy kind is still recorded for operators.
	assert.Equal(t, UnavailableAnswer, resp.Answer)
	assert.Contains(t, logs.String(), string(datatypes.KindVectorFilteredAll))
}

func TestAnswer_ModelSentinelClearsSources(t *testing.T) {
	// Retrieval found chunks, but the model declined with the verbatim
	// sentinel; the response must not cite sources under a non-answer.
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{reply: UnavailableAnswer}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)

	assert.Equal(t, UnavailableAnswer, resp.Answer)
	assert.Equal(t, datatypes.RoutingUnknown, resp.Routing)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 1, f.genChat.callCount(), "the model was consulted before declining")
}

func TestAnswer_UnknownReclassifiesFromHistory(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		sqlReply: topScorerSQL,
		genSteps: []chatStep{{reply: "He also led in scoring. [SQL]"}},
	})
	ctx := context.Background()

	convID, err := f.store.Start(ctx)
	require.NoError(t, err)
	_, err = f.store.Append(ctx, convID,
		"Who scored the most points this season?",
		"Shai Gilgeous-Alexander scored 2484 points.", nil, 10)
	require.NoError(t, err)

	// Alone this query is UNKNOWN; with the previous user turn prepended it
	// classifies statistical and rides the SQL path.
	resp, err := f.pipe.Answer(ctx, datatypes.ChatRequest{
		Query:          "what gives there",
		ConversationID: convID,
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RoutingSQLOnly, resp.Routing)
	assert.Equal(t, 2, resp.TurnNumber)

	// The SQL generator saw the augmented question.
	require.NotZero(t, f.sqlChat.callCount())
	assert.Contains(t, f.sqlChat.lastPrompt(), "Who scored the most points this season? what gives there")

	// The generation prompt carried the turn-1 exchange.
	prompt := f.genChat.lastPrompt()
	assert.Contains(t, prompt, "Conversation so far:")
	assert.Contains(t, prompt, "User: Who scored the most points this season?")
}

// =============================================================================
// Failure Paths
// =============================================================================

func TestAnswer_ChatFailureIsUpstreamUnavailable(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{err: errors.New("model melted")}},
	})

	_, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.Error(t, err)
	assert.True(t, datatypes.IsKind(err, datatypes.KindUpstreamUnavailable))
	assert.Equal(t, 1, f.genChat.callCount(), "non-retryable errors stop immediately")
}

func TestAnswer_RetriesTransientChatErrors(t *testing.T) {
	orig := generateRetryDelays
	generateRetryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { generateRetryDelays = orig })

	rateLimited := &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{
			{err: rateLimited},
			{err: rateLimited},
			{reply: "Recovered answer. [Source: home_court.md]"},
		},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.genChat.callCount())
	assert.Contains(t, resp.Answer, "Recovered answer")
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.GenerationRetriesTotal), 2.0)
}

func TestAnswer_EmbedderFailure(t *testing.T) {
	t.Run("vector as only option fails the request", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{embedErr: errors.New("provider down")})

		_, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
			Query: "What do fans think about home court advantage in the playoffs?",
		})
		require.Error(t, err)
		assert.True(t, datatypes.IsKind(err, datatypes.KindUpstreamUnavailable))
	})

	t.Run("hybrid with grounded SQL degrades instead", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{
			embedErr: errors.New("provider down"),
			sqlReply: topScorerSQL,
			genSteps: []chatStep{{reply: "Stat-grounded answer. [SQL]"}},
		})

		resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
			Query: "Compare Jokić and Embiid's stats and explain which one is more valuable based on their playing style.",
		})
		require.NoError(t, err)
		assert.Equal(t, datatypes.RoutingSQLOnly, resp.Routing)
		assert.Empty(t, resp.Sources)
	})
}

func TestAnswer_DeadlineExceeded(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.pipe.Answer(ctx, datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.Error(t, err)
	assert.True(t, datatypes.IsKind(err, datatypes.KindDeadlineExceeded))
}

func TestAnswer_PersistenceFailureIsAWarning(t *testing.T) {
	// The writer accepts Start but loses every Append.
	f := newFixture(t, fixtureOpts{
		failAppend: true,
		genSteps:   []chatStep{{reply: "Fine answer. [Source: home_court.md]"}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err, "persistence failure never fails the response")
	assert.Contains(t, resp.Answer, "Fine answer")
	assert.NotEmpty(t, resp.PersistenceWarning)
	assert.Zero(t, resp.TurnNumber)
}

// =============================================================================
// Response Shape
// =============================================================================

func TestAnswer_IncludeSourcesFalse(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{reply: "Answer with hidden sources."}},
	})

	off := false
	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query:          "What do fans think about home court advantage in the playoffs?",
		IncludeSources: &off,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Sources)
}

func TestAnswer_ExplicitKBoundsSources(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{reply: "Bounded answer. [Source: home_court.md]"}},
	})

	resp, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
		K:     1,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Sources), 1)
}

func TestAnswer_RecordsMetrics(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		genSteps: []chatStep{{reply: "Metric answer. [Source: home_court.md]"}},
	})

	_, err := f.pipe.Answer(context.Background(), datatypes.ChatRequest{
		Query: "What do fans think about home court advantage in the playoffs?",
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.metrics.RequestsTotal.WithLabelValues("vector_only", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.metrics.ClassifierDecisionsTotal.WithLabelValues("contextual")))
}

// =============================================================================
// Routing Table
// =============================================================================

func TestEffectiveRoutingTable(t *testing.T) {
	tests := []struct {
		name         string
		kind         string
		sqlGrounded  bool
		hasHits      bool
		wantTemplate string
		wantRouting  datatypes.Routing
	}{
		{"sql grounded", "sql_only", true, false, "sql_only", datatypes.RoutingSQLOnly},
		{"sql failed with hits", "sql_only", false, true, "contextual", datatypes.RoutingVectorOnly},
		{"sql failed without hits", "sql_only", false, false, "unknown", datatypes.RoutingUnknown},
		{"hybrid full", "hybrid", true, true, "hybrid", datatypes.RoutingHybrid},
		{"hybrid without context", "hybrid", true, false, "sql_only", datatypes.RoutingSQLOnly},
		{"hybrid sql failed", "hybrid", false, true, "contextual", datatypes.RoutingVectorOnly},
		{"hybrid nothing", "hybrid", false, false, "unknown", datatypes.RoutingUnknown},
		{"contextual with hits", "contextual", false, true, "contextual", datatypes.RoutingVectorOnly},
		{"contextual empty", "contextual", false, false, "unknown", datatypes.RoutingUnknown},
		{"unknown with hits keeps catch-all", "unknown", false, true, "unknown", datatypes.RoutingVectorOnly},
		{"unknown empty", "unknown", false, false, "unknown", datatypes.RoutingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotKind, gotRouting := effective(classifier.Kind(tt.kind), tt.sqlGrounded, tt.hasHits)
			assert.Equal(t, tt.wantTemplate, string(gotKind))
			assert.Equal(t, tt.wantRouting, gotRouting)
		})
	}
}

func TestSourcesDeduplicateByName(t *testing.T) {
	hits := []index.Hit{
		{Chunk: index.Chunk{Source: "a.md"}, Score: 90},
		{Chunk: index.Chunk{Source: "a.md"}, Score: 80},
		{Chunk: index.Chunk{Source: "b.md"}, Score: 70},
	}
	got := sourcesFrom(hits, datatypes.RoutingVectorOnly)
	require.Len(t, got, 2)
	assert.Equal(t, "a.md", got[0].Source)
	assert.Equal(t, 90.0, got[0].Score)
	assert.Equal(t, "b.md", got[1].Source)
}

func TestTrimAnswer(t *testing.T) {
	assert.Equal(t, "plain", trimAnswer("  plain \n"))
	assert.Equal(t, "led the league", trimAnswer("Answer: led the league"))
	assert.False(t, strings.HasPrefix(trimAnswer("Answer:  x"), "Answer:"))
}
