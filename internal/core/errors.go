package core

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageStream    Stage = "stream"
	StageDimension Stage = "dimension"
	StageFact      Stage = "fact"
	StageUnitStart Stage = "unit_start"
)

// ChunkError describes why one chunk failed. Row is the 1-based data row
// number in the file, or 0 when the failure is not tied to a row.
type ChunkError struct {
	Stage     Stage     `json:"stage"`
	Chunk     int       `json:"chunk"`
	Dimension Dimension `json:"dimension,omitempty"`
	Key       string    `json:"key,omitempty"`
	Row       int       `json:"row,omitempty"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
}

func (e *ChunkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chunk %d: %s", e.Chunk, e.Stage)
	if e.Dimension != "" {
		fmt.Fprintf(&b, " %s", e.Dimension)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func newChunkError(stage Stage, chunk int, err error) *ChunkError {
	return &ChunkError{
		Stage:   stage,
		Chunk:   chunk,
		Message: err.Error(),
		Err:     err,
	}
}

// StreamError reports input that could not be parsed. It aborts the whole
// ingestion before any chunk is dispatched.
type StreamError struct {
	Line int // 1-based line in the file, 0 if unknown
	Err  error
}

func (e *StreamError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsStreamError reports whether err came from parsing the input.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// RowError is a single fact row the store refused. Index is the position
// in the slice passed to InsertPolicies.
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("policy %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
