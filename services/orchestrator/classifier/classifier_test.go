// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCatalogFrozen pins the family sizes. Changing a pattern silently
// reroutes queries in production, so any catalog edit must show up here
// and in the behavior table below.
func TestCatalogFrozen(t *testing.T) {
	assert.Len(t, statPatterns, 13, "statistical family size changed")
	assert.Len(t, contextPatterns, 9, "contextual family size changed")
	assert.Len(t, hybridPatterns, 15, "hybrid family size changed")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantKind Kind
		wantConf float64
	}{
		{
			name:     "sql top-n",
			query:    "Who scored the most points this season?",
			wantKind: KindSQLOnly,
			wantConf: 0.8,
		},
		{
			name:     "sql scalar aggregation",
			query:    "How many players scored over 1000 points?",
			wantKind: KindSQLOnly,
			wantConf: 0.8,
		},
		{
			name:     "sql confidence capped at 0.9",
			query:    "What is the average total count of points, rebounds, assists and steals for the top 10?",
			wantKind: KindSQLOnly,
			wantConf: 0.9,
		},
		{
			name:     "hybrid comparison with explanation",
			query:    "Compare Jokić and Embiid's stats and explain which one is more valuable based on their playing style.",
			wantKind: KindHybrid,
			wantConf: 0.9,
		},
		{
			name:     "hybrid via single conjunction",
			query:    "Top 5 scorers and explain why they dominate",
			wantKind: KindHybrid,
			wantConf: 0.7,
		},
		{
			name:     "hybrid via stat and context overlap",
			query:    "Does his average points total show his importance?",
			wantKind: KindHybrid,
			wantConf: 0.8,
		},
		{
			name:     "contextual opinion",
			query:    "What do fans think about home court advantage in the playoffs?",
			wantKind: KindContextual,
			wantConf: 0.6,
		},
		{
			name:     "contextual explanation",
			query:    "Why did the coach change the defensive scheme?",
			wantKind: KindContextual,
			wantConf: 0.7,
		},
		{
			name:     "pronoun follow-up keeps its stat token",
			query:    "What about his assists?",
			wantKind: KindSQLOnly,
			wantConf: 0.6,
		},
		{
			name:     "out of corpus",
			query:    "What is the weather forecast for Los Angeles tomorrow?",
			wantKind: KindUnknown,
			wantConf: 0,
		},
		{
			name:     "one stat and one context match fall through",
			query:    "Is his points impact real?",
			wantKind: KindUnknown,
			wantConf: 0,
		},
		{
			name:     "single token short-circuits",
			query:    "points",
			wantKind: KindUnknown,
			wantConf: 0,
		},
		{
			name:     "empty query",
			query:    "",
			wantKind: KindUnknown,
			wantConf: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.query)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			if tt.wantKind != KindUnknown {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

// TestClassify_Deterministic: same query, same result, every time.
func TestClassify_Deterministic(t *testing.T) {
	const query = "Compare Jokić and Embiid's stats and explain their playing styles"
	first := Classify(query)
	for i := 0; i < 3; i++ {
		require.Equal(t, first, Classify(query))
	}
}

func TestClassify_CountsExposed(t *testing.T) {
	got := Classify("Who scored the most points this season?")
	assert.Equal(t, 3, got.StatMatches)
	assert.Equal(t, 0, got.ContextMatches)
	assert.Equal(t, 0, got.HybridMatches)
}

func TestClassificationHighConfidence(t *testing.T) {
	assert.False(t, Classification{Confidence: 0.6}.HighConfidence())
	assert.True(t, Classification{Confidence: 0.7}.HighConfidence())
	assert.True(t, Classify("Who scored the most points this season?").HighConfidence())
	assert.False(t, Classify("What about his assists?").HighConfidence())
}
