package core

import (
	"errors"
	"iter"
)

// ErrInvalidChunkSize is returned for a chunk size below 1.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// ChunkRows groups rows into chunks of size rows each; the last chunk holds
// the remainder. The whole sequence is consumed before returning, so a
// stream error surfaces before any chunk exists. Zero rows yield zero chunks.
func ChunkRows(rows iter.Seq2[Row, error], size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}

	var (
		chunks []Chunk
		cur    []Row
		total  int
	)
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		if cur == nil {
			cur = make([]Row, 0, min(size, 4096))
		}
		cur = append(cur, row)
		total++
		if len(cur) == size {
			chunks = append(chunks, Chunk{Index: len(chunks), Offset: total - size, Rows: cur})
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Offset: total - len(cur), Rows: cur})
	}
	return chunks, nil
}

// ChunkCount returns ceil(rows/size).
func ChunkCount(rows, size int) int {
	if size <= 0 || rows <= 0 {
		return 0
	}
	return (rows + size - 1) / size
}
