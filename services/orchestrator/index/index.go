// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index implements the in-memory vector index.
//
// # Description
//
// The index pairs an N x D matrix of unit-norm float32 vectors with a
// parallel ordered list of document chunks. Search computes exact inner
// products across all rows (equivalent to cosine similarity because every
// vector is normalized), oversamples the top candidates, applies a
// deterministic quality filter, and returns at most k hits with scores
// scaled to [0,100].
//
// A loaded Index is immutable. Hot reload, when enabled, swaps an entirely
// new Index value behind an atomic pointer (see watcher.go); requests read
// the pointer once and therefore always observe one consistent index.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// NormTolerance is the allowed deviation from unit L2 norm.
const NormTolerance = 1e-5

// =============================================================================
// Data Model
// =============================================================================

// Chunk is an immutable unit of retrievable text.
//
// Position is the chunk's row in the matrix and is stable for the lifetime
// of a loaded index. Metadata carries at minimum a data_type tag.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Sheet    string            `json:"sheet,omitempty"`
	Position int               `json:"position"`
	Metadata map[string]string `json:"metadata"`
}

// DataType returns the chunk's data_type tag, or "" when absent.
func (c *Chunk) DataType() string {
	return c.Metadata["data_type"]
}

// Hit is one retrieval result: a chunk plus its scaled similarity score.
//
// Score is `round((s+1)/2 * 100, 1)` where s is the raw inner product,
// giving a percentage in [0,100] with one decimal.
type Hit struct {
	Chunk    Chunk
	Position int
	Score    float64
}

// =============================================================================
// Index
// =============================================================================

// Options tunes search behavior at construction time.
type Options struct {
	// Oversample widens the candidate window to k*Oversample before the
	// quality filter runs. Minimum 1; default 3.
	Oversample int

	// QualityThreshold is the minimum quality score a candidate needs to
	// be returned. Default 0.5.
	QualityThreshold float64
}

func (o *Options) fillDefaults() {
	if o.Oversample < 1 {
		o.Oversample = 3
	}
	if o.QualityThreshold <= 0 {
		o.QualityThreshold = 0.5
	}
}

// Index is the immutable (matrix, chunks) pair.
type Index struct {
	vectors    []float32 // row-major N x dim
	chunks     []Chunk
	dim        int
	versionTag string
	opts       Options
}

// New builds an Index from per-row vectors and their chunks.
//
// # Inputs
//
//   - vectors: N rows, all of one dimension, each unit-norm within 1e-5.
//   - chunks: exactly N entries; Position is overwritten with the row index.
//   - versionTag: opaque tag recorded by the builder; informational here.
//   - opts: search tuning.
//
// # Outputs
//
//   - *Index: Ready for concurrent Search calls.
//   - error: Row/chunk count mismatch, ragged dimensions, or norm violation.
func New(vectors [][]float32, chunks []Chunk, versionTag string, opts Options) (*Index, error) {
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("index has %d vectors but %d chunks", len(vectors), len(chunks))
	}
	opts.fillDefaults()

	idx := &Index{versionTag: versionTag, opts: opts}
	if len(vectors) == 0 {
		return idx, nil
	}

	idx.dim = len(vectors[0])
	if idx.dim == 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	idx.vectors = make([]float32, 0, len(vectors)*idx.dim)
	idx.chunks = make([]Chunk, len(chunks))

	for i, row := range vectors {
		if len(row) != idx.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, index dimension is %d",
				i, len(row), idx.dim)
		}
		if err := checkUnitNorm(row); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		idx.vectors = append(idx.vectors, row...)
		idx.chunks[i] = chunks[i]
		idx.chunks[i].Position = i
	}
	return idx, nil
}

// Size returns the number of chunks.
func (idx *Index) Size() int { return len(idx.chunks) }

// Dim returns the vector dimensionality; 0 for an empty index.
func (idx *Index) Dim() int { return idx.dim }

// VersionTag returns the builder's version tag.
func (idx *Index) VersionTag() string { return idx.versionTag }

// ChunkAt returns the chunk at the given position.
func (idx *Index) ChunkAt(pos int) (Chunk, error) {
	if pos < 0 || pos >= len(idx.chunks) {
		return Chunk{}, fmt.Errorf("chunk position %d out of range [0,%d)", pos, len(idx.chunks))
	}
	return idx.chunks[pos], nil
}

// =============================================================================
// Search
// =============================================================================

// candidate pairs a row with its raw similarity during selection.
type candidate struct {
	pos int
	sim float64
}

// Search returns the top-k quality-filtered hits for the query vector.
//
// # Description
//
// The query must be unit-norm within tolerance; violations return an
// invalid_input error. An optional filter restricts candidates to chunks
// whose metadata contains every given key/value pair exactly. The candidate
// window is the top k*oversample rows by similarity; the quality filter is
// applied within that window only, so fewer than k hits may return even
// when deeper rows would pass. An empty result is not an error.
//
// Ordering: descending raw similarity, ties broken by ascending position.
func (idx *Index) Search(query []float32, k int, filter map[string]string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, datatypes.Errorf(datatypes.KindInvalidInput,
			"query vector dimension %d does not match index dimension %d", len(query), idx.dim)
	}
	if err := checkUnitNorm(query); err != nil {
		return nil, datatypes.WrapError(datatypes.KindInvalidInput,
			"query vector must be unit-norm", err)
	}
	if len(idx.chunks) == 0 {
		return nil, nil
	}

	candidates := make([]candidate, 0, len(idx.chunks))
	for pos := range idx.chunks {
		if filter != nil && !matchesFilter(&idx.chunks[pos], filter) {
			continue
		}
		row := idx.vectors[pos*idx.dim : (pos+1)*idx.dim]
		candidates = append(candidates, candidate{pos: pos, sim: dot(row, query)})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].pos < candidates[j].pos
	})

	window := k * idx.opts.Oversample
	if window > len(candidates) {
		window = len(candidates)
	}

	hits := make([]Hit, 0, k)
	for _, cand := range candidates[:window] {
		chunk := idx.chunks[cand.pos]
		if QualityScore(&chunk) < idx.opts.QualityThreshold {
			continue
		}
		hits = append(hits, Hit{
			Chunk:    chunk,
			Position: cand.pos,
			Score:    scaleScore(cand.sim),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// matchesFilter reports whether every filter pair appears in the metadata.
func matchesFilter(c *Chunk, filter map[string]string) bool {
	for k, v := range filter {
		if c.Metadata[k] != v {
			return false
		}
	}
	return true
}

// dot computes the inner product with a float64 accumulator.
func dot(row, query []float32) float64 {
	var sum float64
	for i := range row {
		sum += float64(row[i]) * float64(query[i])
	}
	return sum
}

// scaleScore maps a raw similarity in [-1,1] to a percentage in [0,100]
// rounded to one decimal.
func scaleScore(sim float64) float64 {
	return math.Round((sim+1)/2*100*10) / 10
}

// checkUnitNorm verifies |‖v‖ - 1| <= NormTolerance.
func checkUnitNorm(vec []float32) error {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) > NormTolerance {
		return fmt.Errorf("vector norm %.8f deviates from 1 beyond tolerance %g", norm, NormTolerance)
	}
	return nil
}
