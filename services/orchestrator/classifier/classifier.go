// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier routes questions to the SQL path, the vector path,
// or both, without calling any model.
//
// # Description
//
// Classification is pure pattern matching: the lowercased query is tested
// against three regex families (statistical, contextual, hybrid) and the
// match counts feed a fixed decision ladder. The catalog is frozen by the
// package tests because changing a single pattern silently reroutes
// queries; treat any edit as a behavior change, not a refactor.
//
// The package also hosts adaptive top-k selection for the vector path so
// the query taxonomy lives in exactly one place.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the routing intent derived from a query.
type Kind string

const (
	// KindSQLOnly routes exclusively through text-to-SQL.
	KindSQLOnly Kind = "sql_only"
	// KindContextual routes exclusively through vector retrieval.
	KindContextual Kind = "contextual"
	// KindHybrid routes through both paths.
	KindHybrid Kind = "hybrid"
	// KindUnknown means no family matched with enough signal.
	KindUnknown Kind = "unknown"
)

// HighConfidence is the threshold above which a classification is trusted
// enough to treat an empty SQL result as "empty-but-valid" rather than a
// generation miss. With the ladder below, SQL_ONLY reaches 0.7 at two
// statistical matches.
const HighConfidence = 0.7

// Classification is the immutable result of classifying one query.
type Classification struct {
	Kind           Kind
	Confidence     float64
	StatMatches    int
	ContextMatches int
	HybridMatches  int
	Reason         string
}

// HighConfidence reports whether the classification clears the trust
// threshold used by the empty-result policy.
func (c Classification) HighConfidence() bool {
	return c.Confidence >= HighConfidence
}

// mustCompileAll compiles every pattern at init so a bad catalog entry
// fails the process immediately instead of the first matching request.
func mustCompileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// The three families below are matched independently against the
// lowercased query; a query may score in more than one family. Counts,
// not first-match, drive the decision ladder.
var (
	// statPatterns flag questions answerable from the statistics tables:
	// superlatives, explicit stat tokens, aggregations, numeric
	// thresholds, and entity+stat interrogatives.
	statPatterns = mustCompileAll([]string{
		`\btop\s+\d+\b`,
		`\b(most|fewest|highest|lowest)\s+\w+`,
		`\b(stats?|statistics|stat\s+line|numbers)\b`,
		`\b(points?|pts|ppg|scoring)\b`,
		`\b(rebounds?|reb|rpg|boards)\b`,
		`\b(assists?|ast|apg)\b`,
		`\b(steals?|stl|blocks?|blk|turnovers?|tov)\b`,
		`\b(fg%|field\s+goals?|3p%|three[\s-]point(ers)?|ft%|free\s+throws?|ts%|true\s+shooting|efg%?|usage|usg|plus[\s-]minus)\b`,
		`\b(average|avg|mean)\b`,
		`\b(total|sum|combined)\b`,
		`\b(count|how\s+many|number\s+of)\b`,
		`\b(more|greater|higher|less|fewer|lower)\s+than\s+\d+|\b(over|under|at\s+least|at\s+most)\s+\d+`,
		`\bwho\s+(has|had|leads?|led|scored?|averag\w+|record(s|ed)?)\b`,
	})

	// contextPatterns flag questions needing discussion text: explanation
	// verbs, opinion markers, and stylistic or strategic nouns.
	contextPatterns = mustCompileAll([]string{
		`\bwhy\b`,
		`\bhow\s+(does|did|do|is|was|can|could)\b`,
		`\bexplain\b`,
		`\b(describe|discuss|elaborate|analy[sz]e|analysis)\b`,
		`\b(think|believe|opinion|feel|thoughts)\b`,
		`\b(style|playstyle|approach|philosophy|mentality)\b`,
		`\b(impact|influence|importance|significance)\b`,
		`\b(strategy|strategic|tactics?|scheme|system)\b`,
		`\b(define|definition|meaning|what\s+does\s+\w+\s+mean)\b`,
	})

	// hybridPatterns flag a statistical request conjoined with an
	// explanation request. One hybrid match outranks everything else in
	// the ladder, so these are the most specific shapes in the catalog.
	hybridPatterns = mustCompileAll([]string{
		`\b(top|most|best|highest)\b.*\b(and|then)\s+(explain|why|how)\b`,
		`\b(top|most|best|highest)\b.*\bwhat\s+makes\b`,
		`\b(compare|list|show)\b.*\band\s+(explain|analy[sz]e|discuss|describe)\b`,
		`\bcompare\b.*\b(and|vs\.?|versus|with|against)\b`,
		`\b(stats?|statistics|numbers)\b.*\b(and|then)\s+(explain|why|discuss|analy[sz]e)\b`,
		`\bwho\b.*\band\s+(why|explain|how)\b`,
		`\b(average|total|count)\b.*\b(and|then)\s+(explain|why|discuss)\b`,
		`\b(explain|why)\b.*\b(top\s+\d+|most|highest|average|per\s+game)\b`,
		`\brank(s|ed|ing)?\b.*\b(explain|why|analy[sz]e|discuss)\b`,
		`\b(top|best)\s+\d+\b.*\b(describe|discuss|talk\s+about|tell\s+me\s+about)\b`,
		`\befficien(cy|t)\b.*\b(compare|vs\.?|versus|between)\b`,
		`\b(how\s+many|how\s+much)\b.*\bwhat\s+(makes|about)\b`,
		`\b(leaders?|leaderboard)\b.*\b(and|then)\s+(explain|why|context)\b`,
		`\b(better|worse)\b.*\b(statistically|stats?|numbers)\b`,
		`\b(break\s*down|breakdown)\b.*\b(stats?|numbers|statistically)\b`,
	})
)

// Classify decides the routing intent for one query.
//
// # Description
//
// The query is lowercased and scored against all three families; the match
// counts S (statistical), C (contextual) and H (hybrid) feed the ladder:
//
//  1. H >= 1            -> HYBRID,     confidence min(0.9, 0.6+0.1*H)
//  2. S >= 2 and C >= 1 -> HYBRID,     confidence 0.8
//  3. S >= 1 and C == 0 -> SQL_ONLY,   confidence min(0.9, 0.5+0.1*S)
//  4. C >= 1 and S == 0 -> CONTEXTUAL, confidence min(0.85, 0.5+0.1*C)
//  5. otherwise         -> UNKNOWN,    confidence 0
//
// Queries with fewer than two whitespace tokens are UNKNOWN regardless of
// matches. Classify never fails; gibberish is UNKNOWN with confidence 0.
func Classify(query string) Classification {
	lowered := strings.ToLower(query)

	if len(strings.Fields(lowered)) < 2 {
		return Classification{
			Kind:   KindUnknown,
			Reason: "fewer than two tokens",
		}
	}

	s := countMatches(statPatterns, lowered)
	c := countMatches(contextPatterns, lowered)
	h := countMatches(hybridPatterns, lowered)

	cls := Classification{StatMatches: s, ContextMatches: c, HybridMatches: h}
	switch {
	case h >= 1:
		cls.Kind = KindHybrid
		cls.Confidence = min(0.9, 0.6+0.1*float64(h))
		cls.Reason = fmt.Sprintf("%d hybrid conjunction(s)", h)
	case s >= 2 && c >= 1:
		cls.Kind = KindHybrid
		cls.Confidence = 0.8
		cls.Reason = fmt.Sprintf("%d statistical + %d contextual matches", s, c)
	case s >= 1 && c == 0:
		cls.Kind = KindSQLOnly
		cls.Confidence = min(0.9, 0.5+0.1*float64(s))
		cls.Reason = fmt.Sprintf("%d statistical match(es)", s)
	case c >= 1 && s == 0:
		cls.Kind = KindContextual
		cls.Confidence = min(0.85, 0.5+0.1*float64(c))
		cls.Reason = fmt.Sprintf("%d contextual match(es)", c)
	default:
		cls.Kind = KindUnknown
		cls.Reason = "no family matched"
	}
	return cls
}

func countMatches(patterns []*regexp.Regexp, query string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(query) {
			n++
		}
	}
	return n
}
