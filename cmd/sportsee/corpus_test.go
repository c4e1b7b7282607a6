// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
)

// =============================================================================
// Fakes
// =============================================================================

// axisEmbedder deterministically maps each text to a unit axis vector
// keyed by text length, so position alignment is checkable after
// concurrent embedding.
type axisEmbedder struct {
	err error
}

func axisFor(text string) []float32 {
	vec := []float32{0, 0, 0}
	vec[len(text)%3] = 1
	return vec
}

func (e *axisEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return axisFor(text), nil
}

func (e *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = axisFor(t)
	}
	return out, nil
}

func (e *axisEmbedder) Dim() int { return 3 }

// writeCorpusFile creates path under dir, creating parents as needed.
func writeCorpusFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

// =============================================================================
// Data Type Conventions
// =============================================================================

func TestDataTypeForFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"corpus/nba_glossary.md", "glossary"},
		{"corpus/Glossary_advanced.txt", "glossary"},
		{"corpus/team_stats.csv", "team_stats"},
		{"corpus/team_rosters.md", "team_stats"},
		{"corpus/game_log_2026.csv", "game_data"},
		{"corpus/schedule.txt", "game_data"},
		{"corpus/boxscores_finals.csv", "game_data"},
		{"corpus/player_stats.csv", "player_stats"},
		{"corpus/season_stats.md", "player_stats"},
		{"corpus/standings.csv", "player_stats"},
		{"corpus/mvp_debate.md", "discussion"},
		{"corpus/forum/home_court.txt", "discussion"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, dataTypeForFile(tt.path))
		})
	}
}

// =============================================================================
// Corpus Walking
// =============================================================================

func TestCollectCorpusFiles(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "glossary.md", "# Glossary\n\nTS%: true shooting percentage.")
	writeCorpusFile(t, dir, "threads/home_court.txt", "Fans argue about home court.")
	writeCorpusFile(t, dir, "player_stats.csv", "name,pts\nJokic,2130\n")
	writeCorpusFile(t, dir, "notes.json", `{"ignored": true}`)
	writeCorpusFile(t, dir, ".cache/stale.md", "should be skipped")

	files, err := collectCorpusFiles(dir)
	require.NoError(t, err)

	names := make([]string, len(files))
	for i, f := range files {
		rel, relErr := filepath.Rel(dir, f)
		require.NoError(t, relErr)
		names[i] = rel
	}
	assert.ElementsMatch(t,
		[]string{"glossary.md", filepath.Join("threads", "home_court.txt"), "player_stats.csv"},
		names)
}

func TestCollectCorpusFiles_MissingRoot(t *testing.T) {
	_, err := collectCorpusFiles(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

// =============================================================================
// Splitting
// =============================================================================

func TestSplitCorpusFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	section := strings.Repeat("The debate around pace and usage keeps coming back every spring. ", 4)
	content := "# MVP debate\n\n" + section + "\n\n# Home court\n\n" + section
	path := writeCorpusFile(t, dir, "mvp_debate.md", content)

	chunks, err := splitCorpusFile(path, dir, 120, 20)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2, "long two-section document should split")

	seen := map[string]bool{}
	for _, c := range chunks {
		assert.Equal(t, "mvp_debate.md", c.Source)
		assert.Equal(t, "discussion", c.Metadata["data_type"])
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		assert.False(t, seen[c.ID], "chunk IDs must be unique")
		seen[c.ID] = true
	}

	// Rebuilding the same file reproduces the same IDs.
	again, err := splitCorpusFile(path, dir, 120, 20)
	require.NoError(t, err)
	require.Len(t, again, len(chunks))
	for i := range chunks {
		assert.Equal(t, chunks[i].ID, again[i].ID)
	}
}

func TestSplitCorpusFile_CSVRowsStayWhole(t *testing.T) {
	dir := t.TempDir()
	csv := "name,pts\nShai Gilgeous-Alexander,2484\nNikola Jokic,2130\nGiannis Antetokounmpo,1985\n"
	path := writeCorpusFile(t, dir, "player_stats.csv", csv)

	// A chunk size smaller than any record forces one chunk per row while
	// still keeping each record intact.
	chunks, err := splitCorpusFile(path, dir, 10, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Contains(t, chunks[0].Text, "2484")
	assert.Contains(t, chunks[0].Text, "pts")
	assert.Equal(t, "rows 2-2", chunks[0].Sheet)
	assert.Equal(t, "rows 3-3", chunks[1].Sheet)
	assert.Equal(t, "rows 4-4", chunks[2].Sheet)
	for _, c := range chunks {
		assert.Equal(t, "player_stats.csv", c.Source)
		assert.Equal(t, "player_stats", c.Metadata["data_type"])
	}
}

func TestSplitCorpusFile_CSVPacksRows(t *testing.T) {
	dir := t.TempDir()
	csv := "name,pts\nShai Gilgeous-Alexander,2484\nNikola Jokic,2130\nGiannis Antetokounmpo,1985\n"
	path := writeCorpusFile(t, dir, "player_stats.csv", csv)

	chunks, err := splitCorpusFile(path, dir, 4000, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "all rows fit one generous chunk")
	assert.Equal(t, "rows 2-4", chunks[0].Sheet)
	assert.Contains(t, chunks[0].Text, "2130")
	assert.Contains(t, chunks[0].Text, "1985")
}

// =============================================================================
// Embedding
// =============================================================================

func TestEmbedChunks_PreservesOrder(t *testing.T) {
	texts := []string{"aa", "bbb", "cccc", "ddddd", "eeeeee"}
	chunks := make([]index.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = index.Chunk{ID: text, Text: text}
	}

	var batches atomic.Int32
	vectors, err := embedChunks(context.Background(), &axisEmbedder{}, chunks, 2, 2,
		func() { batches.Add(1) })
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		assert.Equal(t, axisFor(text), vectors[i], "vector %d misaligned", i)
	}
	assert.Equal(t, int32(3), batches.Load(), "5 chunks at batch size 2 is 3 batches")
}

func TestEmbedChunks_PropagatesFailure(t *testing.T) {
	chunks := []index.Chunk{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}}
	wantErr := errors.New("provider down")

	_, err := embedChunks(context.Background(), &axisEmbedder{err: wantErr}, chunks, 1, 2, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed batch")
	assert.ErrorIs(t, err, wantErr)
}

// =============================================================================
// End to End
// =============================================================================

func TestCorpusToIndexRoundTrip(t *testing.T) {
	corpus := t.TempDir()
	writeCorpusFile(t, corpus, "nba_glossary.md",
		"# Glossary\n\nTS%: true shooting percentage, a shooting efficiency measure.")
	writeCorpusFile(t, corpus, "threads/home_court.txt",
		"Fans argue that loud home crowds tilt close playoff games toward the hosts.")
	writeCorpusFile(t, corpus, "player_stats.csv",
		"name,pts\nShai Gilgeous-Alexander,2484\nNikola Jokic,2130\n")

	files, err := collectCorpusFiles(corpus)
	require.NoError(t, err)
	require.Len(t, files, 3)

	var chunks []index.Chunk
	for _, f := range files {
		fileChunks, splitErr := splitCorpusFile(f, corpus, 400, 40)
		require.NoError(t, splitErr)
		chunks = append(chunks, fileChunks...)
	}
	require.NotEmpty(t, chunks)

	vectors, err := embedChunks(context.Background(), &axisEmbedder{}, chunks, 2, 2, nil)
	require.NoError(t, err)

	out := t.TempDir()
	matrixPath := filepath.Join(out, "vectors.ssvi")
	chunksPath := filepath.Join(out, "chunks.json")
	require.NoError(t, index.Write(matrixPath, chunksPath, vectors, chunks, "cli-test-v1"))

	idx, err := index.Load(matrixPath, chunksPath, index.Options{})
	require.NoError(t, err)
	assert.Equal(t, len(chunks), idx.Size())
	assert.Equal(t, 3, idx.Dim())
	assert.Equal(t, "cli-test-v1", idx.VersionTag())
}
