// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shah-data-scientist/Sports-See-sub000/pkg/ux"
	"github.com/shah-data-scientist/Sports-See-sub000/services/embedding"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
)

// =============================================================================
// Command Flags
// =============================================================================

var (
	buildMatrixPath  string // output matrix path, defaults to config
	buildChunksPath  string // output chunk list path, defaults to config
	buildChunkSize   int    // splitter chunk size in characters
	buildOverlap     int    // splitter overlap in characters
	buildBatchSize   int    // chunks per embedding call
	buildConcurrency int    // concurrent embedding calls
	buildTag         string // version tag, defaults to a timestamped tag
)

// =============================================================================
// Command Definitions
// =============================================================================

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the on-disk vector index",
}

// indexBuildCmd builds a fresh index from a corpus directory.
//
// # Description
//
// Walks the corpus for .md, .txt, and .csv files, splits them into chunks
// with format-aware separators, embeds every chunk through the configured
// provider, and writes the (matrix, chunks) pair atomically. A server
// running with index_watch enabled picks the new files up without a
// restart.
//
// # Examples
//
//	sportsee index build ./corpus
//	sportsee index build ./corpus --chunk-size 800 --tag 2026-03-01
var indexBuildCmd = &cobra.Command{
	Use:   "build [corpus-dir]",
	Short: "Build the vector index from a corpus directory",
	Args:  cobra.ExactArgs(1),
	Run:   runIndexBuild,
}

// indexInspectCmd summarizes the index currently on disk.
var indexInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the on-disk vector index",
	Args:  cobra.NoArgs,
	Run:   runIndexInspect,
}

func init() {
	indexBuildCmd.Flags().StringVar(&buildMatrixPath, "matrix", "",
		"output matrix path (defaults to the configured index_matrix_path)")
	indexBuildCmd.Flags().StringVar(&buildChunksPath, "chunks", "",
		"output chunk list path (defaults to the configured index_chunks_path)")
	indexBuildCmd.Flags().IntVar(&buildChunkSize, "chunk-size", 1000,
		"chunk size in characters")
	indexBuildCmd.Flags().IntVar(&buildOverlap, "chunk-overlap", 100,
		"chunk overlap in characters")
	indexBuildCmd.Flags().IntVar(&buildBatchSize, "batch-size", 64,
		"chunks per embedding request")
	indexBuildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 4,
		"concurrent embedding requests")
	indexBuildCmd.Flags().StringVar(&buildTag, "tag", "",
		"version tag stamped into both files (defaults to a timestamp)")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexInspectCmd)
	rootCmd.AddCommand(indexCmd)
}

// =============================================================================
// Build
// =============================================================================

func runIndexBuild(cmd *cobra.Command, args []string) {
	corpusDir := args[0]
	matrixPath := buildMatrixPath
	if matrixPath == "" {
		matrixPath = settings.IndexMatrixPath
	}
	chunksPath := buildChunksPath
	if chunksPath == "" {
		chunksPath = settings.IndexChunksPath
	}
	tag := buildTag
	if tag == "" {
		tag = fmt.Sprintf("corpus-%s", time.Now().UTC().Format("20060102-150405"))
	}

	ux.Title("Sports-See index build")
	ux.Info(fmt.Sprintf("corpus: %s", corpusDir))
	ux.Info(fmt.Sprintf("output: %s, %s (tag %s)", matrixPath, chunksPath, tag))

	files, err := collectCorpusFiles(corpusDir)
	if err != nil {
		fail(err)
	}
	if len(files) == 0 {
		fail(fmt.Errorf("no .md, .txt, or .csv files under %s", corpusDir))
	}

	var chunks []index.Chunk
	skipped := 0
	for _, file := range files {
		fileChunks, err := splitCorpusFile(file, corpusDir, buildChunkSize, buildOverlap)
		if err != nil {
			ux.Warning(fmt.Sprintf("skipping %s: %v", file, err))
			skipped++
			continue
		}
		if len(fileChunks) == 0 {
			logger.Warn("file produced no chunks", "file", file)
			skipped++
			continue
		}
		chunks = append(chunks, fileChunks...)
	}
	if len(chunks) == 0 {
		fail(fmt.Errorf("corpus produced no chunks"))
	}
	logger.Info("corpus split complete",
		"files", len(files), "skipped", skipped, "chunks", len(chunks))

	// The builder embeds straight through the provider; the persistent
	// query cache is left to the server, which owns its directory lock.
	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:    settings.OpenAIAPIKey,
		BaseURL:   settings.OpenAIBaseURL,
		Model:     settings.EmbeddingModel,
		Dim:       settings.EmbeddingDim,
		RateLimit: settings.EmbedRateLimit,
	})
	if err != nil {
		fail(err)
	}

	batches := (len(chunks) + buildBatchSize - 1) / buildBatchSize
	spin := ux.NewProgressSpinner("Embedding chunks", batches)
	spin.Start()
	vectors, err := embedChunks(cmd.Context(), embedder, chunks,
		buildBatchSize, buildConcurrency, spin.Increment)
	if err != nil {
		spin.StopWithError(fmt.Sprintf("embedding failed: %v", err))
		fail(err)
	}
	spin.StopWithSuccess(fmt.Sprintf("Embedded %d chunks in %d batches", len(chunks), batches))

	if err := index.Write(matrixPath, chunksPath, vectors, chunks, tag); err != nil {
		fail(fmt.Errorf("write index: %w", err))
	}
	ux.Success(fmt.Sprintf("Index written: %d chunks, dimension %d, tag %s",
		len(chunks), embedder.Dim(), tag))
	ux.Summary(len(files)-skipped, skipped, len(files))
}

// =============================================================================
// Inspect
// =============================================================================

func runIndexInspect(cmd *cobra.Command, args []string) {
	idx, err := index.Load(settings.IndexMatrixPath, settings.IndexChunksPath, index.Options{})
	if err != nil {
		fail(fmt.Errorf("load index: %w", err))
	}

	ux.Title("Sports-See index")
	ux.Status(true, "version", idx.VersionTag())
	ux.Status(true, "chunks", fmt.Sprintf("%d", idx.Size()))
	ux.Status(true, "dimension", fmt.Sprintf("%d", idx.Dim()))

	counts := map[string]int{}
	for i := 0; i < idx.Size(); i++ {
		c, err := idx.ChunkAt(i)
		if err != nil {
			fail(err)
		}
		dt := c.DataType()
		if dt == "" {
			dt = "(untagged)"
		}
		counts[dt]++
	}
	types := make([]string, 0, len(counts))
	for dt := range counts {
		types = append(types, dt)
	}
	sort.Strings(types)
	for _, dt := range types {
		ux.Info(fmt.Sprintf("%-14s %d", dt, counts[dt]))
	}
}
