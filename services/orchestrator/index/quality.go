// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"strings"
	"unicode/utf8"
)

// minCoherentChars is the minimum chunk length for any coherence credit.
// Shorter fragments are column headers and typographic noise.
const minCoherentChars = 20

// recognizedDataTypes are the data_type tags the ingestion pipeline emits.
var recognizedDataTypes = map[string]bool{
	"player_stats": true,
	"team_stats":   true,
	"game_data":    true,
	"discussion":   true,
	"glossary":     true,
}

// authorityDataTypes earn the source-authority bonus.
var authorityDataTypes = map[string]bool{
	"glossary":     true,
	"player_stats": true,
}

// QualityScore rates a chunk in [0,1].
//
// # Description
//
// Three additive components:
//
//   - Coherence (at most 0.6): based on the mean word length of the chunk's
//     whitespace tokens. 0.6 for a mean in [4,8], 0.4 for [3,4) or (8,12],
//     otherwise 0. Chunks under 20 characters earn no coherence credit.
//   - Metadata completeness (at most 0.3): 0.15 for a non-empty source plus
//     0.15 for a recognized data_type.
//   - Authority bonus (at most 0.1): 0.1 when the data_type is glossary or
//     player_stats.
//
// The filter is conservative so well-formed discussion text always clears
// the default 0.5 threshold while header fragments and garbled text do not.
func QualityScore(c *Chunk) float64 {
	score := coherence(c.Text)

	if c.Source != "" {
		score += 0.15
	}
	dataType := c.DataType()
	if recognizedDataTypes[dataType] {
		score += 0.15
	}
	if authorityDataTypes[dataType] {
		score += 0.1
	}
	return score
}

// coherence scores text by mean token length.
func coherence(text string) float64 {
	if utf8.RuneCountInString(text) < minCoherentChars {
		return 0
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	var total int
	for _, tok := range tokens {
		total += utf8.RuneCountInString(tok)
	}
	mean := float64(total) / float64(len(tokens))

	switch {
	case mean >= 4 && mean <= 8:
		return 0.6
	case (mean >= 3 && mean < 4) || (mean > 8 && mean <= 12):
		return 0.4
	default:
		return 0
	}
}
