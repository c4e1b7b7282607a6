// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import "strings"

// queryShape is the coarse taxonomy shared by the complexity and recall
// estimates for adaptive k.
type queryShape int

const (
	shapeSingleEntity queryShape = iota
	shapeComparison
	shapeContinuation
	shapeCollection
)

var (
	continuationMarkers = []string{"also", "what about", "how about", "and his", "and her", "and their"}
	comparisonMarkers   = []string{"vs", "versus", "compare", "compared", "between", "better", "worse", "than"}
	collectionMarkers   = []string{"top", "best", "all", "list", "teams", "players", "leaders"}
)

// complexityK and recallK are indexed by queryShape. The final k is the
// max of the two, so a continuation ("what about ...") widens the window
// even though its recall need is ordinary, and a collection query widens
// recall without claiming extra complexity.
var (
	complexityK = map[queryShape]int{
		shapeSingleEntity: 5,
		shapeComparison:   7,
		shapeContinuation: 9,
		shapeCollection:   7,
	}
	recallK = map[queryShape]int{
		shapeSingleEntity: 6,
		shapeComparison:   7,
		shapeContinuation: 6,
		shapeCollection:   8,
	}
)

// AdaptiveK picks the retrieval depth for a query when the caller did not
// request an explicit k.
//
// # Description
//
// The query is bucketed into one shape (continuation beats comparison
// beats collection beats single-entity, matching how strongly each marker
// signals intent) and k = max(complexityK, recallK) for that shape.
// Resulting depths: single-entity 6, comparison 7, collection 8,
// continuation 9.
func AdaptiveK(query string) int {
	shape := shapeOf(strings.ToLower(query))
	kc := complexityK[shape]
	kr := recallK[shape]
	return max(kc, kr)
}

func shapeOf(lowered string) queryShape {
	switch {
	case containsAnyWord(lowered, continuationMarkers):
		return shapeContinuation
	case containsAnyWord(lowered, comparisonMarkers):
		return shapeComparison
	case containsAnyWord(lowered, collectionMarkers):
		return shapeCollection
	default:
		return shapeSingleEntity
	}
}

// containsAnyWord does whole-word matching for single-word markers and
// substring matching for multi-word markers, so "vs" never fires inside
// "average".
func containsAnyWord(lowered string, markers []string) bool {
	fields := strings.Fields(lowered)
	for _, m := range markers {
		if strings.ContainsRune(m, ' ') {
			if strings.Contains(lowered, m) {
				return true
			}
			continue
		}
		for _, f := range fields {
			if strings.Trim(f, ".,!?'\"") == m || f == m {
				return true
			}
		}
	}
	return false
}
