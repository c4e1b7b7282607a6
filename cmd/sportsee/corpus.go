// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/shah-data-scientist/Sports-See-sub000/services/embedding"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
)

// =============================================================================
// Corpus Layout
// =============================================================================

// corpusExtensions are the file types the builder ingests.
var corpusExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".csv": true,
}

var (
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
	plainSeparators = []string{"\n\n", "\n", " ", ""}
)

// dataTypeForFile derives the chunk data_type tag from filename conventions.
//
// # Description
//
// The corpus is organized by naming convention rather than directory
// structure, so the tag comes from the basename: "glossary" anywhere in
// the name wins, then team files, then game logs and schedules, then
// anything that looks tabular or player-centric. Everything else is
// treated as discussion text (forum threads, articles, debate pieces).
func dataTypeForFile(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "glossary"):
		return "glossary"
	case strings.Contains(name, "team"):
		return "team_stats"
	case strings.Contains(name, "game"),
		strings.Contains(name, "schedule"),
		strings.Contains(name, "boxscore"):
		return "game_data"
	case strings.Contains(name, "player"),
		strings.Contains(name, "stats"),
		strings.HasSuffix(name, ".csv"):
		return "player_stats"
	default:
		return "discussion"
	}
}

// collectCorpusFiles walks root and returns ingestable files in walk order.
// Hidden directories (dotfiles) are skipped wholesale.
func collectCorpusFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if corpusExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", root, err)
	}
	return files, nil
}

// =============================================================================
// Splitting
// =============================================================================

// splitCorpusFile turns one corpus file into chunks.
//
// Markdown and plain text go through the recursive character splitter with
// format-appropriate separators. CSV files are handled row-wise so a chunk
// never cuts a record in half.
func splitCorpusFile(path, root string, chunkSize, chunkOverlap int) ([]index.Chunk, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return splitCSVFile(path, rel, chunkSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	separators := plainSeparators
	if strings.EqualFold(filepath.Ext(path), ".md") {
		separators = markdownSeparators
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
	pieces, err := splitter.SplitText(string(raw))
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}

	dataType := dataTypeForFile(path)
	chunks := make([]index.Chunk, 0, len(pieces))
	for i, text := range pieces {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, index.Chunk{
			ID:       chunkID(rel, i, text),
			Text:     text,
			Source:   rel,
			Metadata: map[string]string{"data_type": dataType},
		})
	}
	return chunks, nil
}

// splitCSVFile loads a CSV through the langchaingo loader, which renders
// each record as "column: value" lines, then packs whole records into
// chunks up to chunkSize characters. The covered row range is recorded in
// the chunk's sheet descriptor. Row numbers are 1-based counting the
// header, matching what a spreadsheet shows.
func splitCSVFile(path, rel string, chunkSize int) ([]index.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := documentloaders.NewCSV(f).Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	dataType := dataTypeForFile(path)
	var chunks []index.Chunk
	var buf strings.Builder
	firstRow := 0

	flush := func(lastRow int) {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		chunks = append(chunks, index.Chunk{
			ID:       chunkID(rel, len(chunks), text),
			Text:     text,
			Source:   rel,
			Sheet:    fmt.Sprintf("rows %d-%d", firstRow, lastRow),
			Metadata: map[string]string{"data_type": dataType},
		})
	}

	for i, doc := range docs {
		row := i + 2 // data rows start below the header
		if buf.Len() > 0 && buf.Len()+len(doc.PageContent) > chunkSize {
			flush(row - 1)
		}
		if buf.Len() == 0 {
			firstRow = row
		} else {
			buf.WriteString("\n\n")
		}
		buf.WriteString(doc.PageContent)
	}
	flush(len(docs) + 1)
	return chunks, nil
}

// chunkID derives a stable identifier from the chunk's provenance and
// content, so rebuilding an unchanged corpus reproduces the same IDs.
func chunkID(source string, position int, text string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d:%s", source, position, text)))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}

// =============================================================================
// Embedding
// =============================================================================

// embedChunks embeds every chunk's text, preserving chunk order.
//
// # Description
//
// Chunks are grouped into batches of batchSize and embedded with at most
// concurrency in-flight provider calls. Each goroutine writes into a
// disjoint slice range, so no synchronization beyond the errgroup is
// needed. progress, when non-nil, is called once per completed batch.
func embedChunks(ctx context.Context, embedder embedding.Embedder, chunks []index.Chunk,
	batchSize, concurrency int, progress func()) ([][]float32, error) {

	if batchSize < 1 {
		batchSize = 64
	}
	if concurrency < 1 {
		concurrency = 4
	}

	vectors := make([][]float32, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			vecs, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			copy(vectors[start:end], vecs)
			if progress != nil {
				progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
