// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Write persists the (matrix, chunks) pair for later loading.
//
// # Description
//
// Each file is written to a temp sibling and renamed into place, so a
// concurrent loader sees either the old pair or the new pair, never a
// torn file. The same versionTag is stamped into both files; Load refuses
// pairs whose tags disagree, which covers the window where one rename has
// landed and the other has not.
//
// # Inputs
//
//   - matrixPath, chunksPath: Destination paths; parent directories are
//     created as needed.
//   - vectors: N unit-norm rows of one dimension.
//   - chunks: Exactly N chunks; positions are rewritten to row order.
//   - versionTag: Opaque build identifier, at most 1024 bytes.
func Write(matrixPath, chunksPath string, vectors [][]float32, chunks []Chunk, versionTag string) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("have %d vectors but %d chunks", len(vectors), len(chunks))
	}
	if len(versionTag) > maxTagLength {
		return fmt.Errorf("version tag length %d exceeds maximum %d", len(versionTag), maxTagLength)
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for i, row := range vectors {
		if len(row) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(row), dim)
		}
		if err := checkUnitNorm(row); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}

	if err := writeMatrix(matrixPath, vectors, dim, versionTag); err != nil {
		return err
	}
	return writeChunks(chunksPath, chunks, versionTag)
}

func writeMatrix(path string, vectors [][]float32, dim int, tag string) error {
	size := matrixMinSize + len(tag) + len(vectors)*dim*4
	buf := make([]byte, 0, size)

	buf = append(buf, matrixMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, matrixFormat)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tag)))
	buf = append(buf, tag...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vectors)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dim))
	for _, row := range vectors {
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return atomicWrite(path, buf)
}

func writeChunks(path string, chunks []Chunk, tag string) error {
	normalized := make([]Chunk, len(chunks))
	for i, c := range chunks {
		c.Position = i
		normalized[i] = c
	}
	data, err := json.Marshal(chunkFile{VersionTag: tag, Chunks: normalized})
	if err != nil {
		return fmt.Errorf("encode chunk file: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite lands data at path via a temp sibling and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
