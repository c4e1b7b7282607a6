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
)

// Matrix file layout, little-endian throughout:
//
//	magic      4 bytes  "SSVI"
//	format     uint16   currently 1
//	tag length uint16
//	tag        UTF-8 bytes
//	rows (N)   uint32
//	dim (D)    uint32
//	data       N*D float32
const (
	matrixMagic   = "SSVI"
	matrixFormat  = uint16(1)
	maxTagLength  = 1 << 10
	matrixMinSize = 4 + 2 + 2 + 4 + 4
)

// chunkFile is the JSON document stored beside the matrix.
type chunkFile struct {
	VersionTag string  `json:"version_tag"`
	Chunks     []Chunk `json:"chunks"`
}

// Load reads the (matrix, chunks) pair and builds an Index.
//
// # Description
//
// Both files are read fully before any validation succeeds, so a partially
// written pair can never produce a half-loaded index. Validation covers the
// magic, the format version, row/chunk count equality, matching version
// tags across the two files, and unit norms on every row.
//
// # Inputs
//
//   - matrixPath: Binary matrix file.
//   - chunksPath: JSON chunk list.
//   - opts: Search tuning carried into the Index.
//
// # Outputs
//
//   - *Index: Immutable, ready to serve.
//   - error: Any structural or consistency violation; the caller must treat
//     the pair as unusable.
func Load(matrixPath, chunksPath string, opts Options) (*Index, error) {
	raw, err := os.ReadFile(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("read matrix file: %w", err)
	}
	tag, flat, n, dim, err := parseMatrix(raw)
	if err != nil {
		return nil, fmt.Errorf("matrix file %s: %w", matrixPath, err)
	}

	chunksRaw, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	var cf chunkFile
	if err := json.Unmarshal(chunksRaw, &cf); err != nil {
		return nil, fmt.Errorf("parse chunk file %s: %w", chunksPath, err)
	}

	if cf.VersionTag != tag {
		return nil, fmt.Errorf("version tag mismatch: matrix has %q, chunks have %q",
			tag, cf.VersionTag)
	}
	if len(cf.Chunks) != n {
		return nil, fmt.Errorf("matrix has %d rows but chunk file has %d chunks",
			n, len(cf.Chunks))
	}

	rows := make([][]float32, n)
	for i := 0; i < n; i++ {
		rows[i] = flat[i*dim : (i+1)*dim]
	}
	idx, err := New(rows, cf.Chunks, tag, opts)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return idx, nil
}

// parseMatrix decodes the binary layout and returns tag, data, N, D.
func parseMatrix(raw []byte) (string, []float32, int, int, error) {
	if len(raw) < matrixMinSize {
		return "", nil, 0, 0, fmt.Errorf("file too short (%d bytes)", len(raw))
	}
	if string(raw[:4]) != matrixMagic {
		return "", nil, 0, 0, fmt.Errorf("bad magic %q", raw[:4])
	}
	off := 4

	format := binary.LittleEndian.Uint16(raw[off:])
	off += 2
	if format != matrixFormat {
		return "", nil, 0, 0, fmt.Errorf("unsupported format version %d", format)
	}

	tagLen := int(binary.LittleEndian.Uint16(raw[off:]))
	off += 2
	if tagLen > maxTagLength {
		return "", nil, 0, 0, fmt.Errorf("version tag length %d exceeds maximum %d", tagLen, maxTagLength)
	}
	if len(raw) < off+tagLen+8 {
		return "", nil, 0, 0, fmt.Errorf("file truncated in header")
	}
	tag := string(raw[off : off+tagLen])
	off += tagLen

	n := int(binary.LittleEndian.Uint32(raw[off:]))
	off += 4
	dim := int(binary.LittleEndian.Uint32(raw[off:]))
	off += 4

	want := off + n*dim*4
	if len(raw) != want {
		return "", nil, 0, 0, fmt.Errorf("file has %d bytes, header implies %d", len(raw), want)
	}

	flat := make([]float32, n*dim)
	for i := range flat {
		flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off+i*4:]))
	}
	return tag, flat, n, dim, nil
}
