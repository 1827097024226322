package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode"
)

// ErrEmptyInput is returned when the upload has no header row.
var ErrEmptyInput = errors.New("empty file: missing header row")

// ErrMissingColumn is returned when the header lacks a natural-key column.
var ErrMissingColumn = errors.New("header is missing required column")

// invalidHeaderRune matches control bytes and the '?' the UTF-8 sanitizer
// writes in place of an invalid byte. Neither appears in a real column name.
func invalidHeaderRune(r rune) bool {
	return r == '?' || r == unicode.ReplacementChar || unicode.IsControl(r)
}

// RecordReader yields the data rows of a delimited upload in source order.
// It reads lazily and cannot be rewound; reading again means reopening the
// artifact.
type RecordReader struct {
	counter *CountingReader
	csv     *csv.Reader
	header  []string
	line    int
}

// NewRecordReader wraps r and reads the header row. A missing, blank,
// duplicated or unreadable header name is a *StreamError, and so is a header
// without every natural-key column.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	counter := WrapForStreaming(r)

	cr := csv.NewReader(counter)
	cr.ReuseRecord = true
	cr.LazyQuotes = false

	rr := &RecordReader{counter: counter, csv: cr}

	raw, err := cr.Read()
	if err == io.EOF {
		return nil, &StreamError{Err: ErrEmptyInput}
	}
	if err != nil {
		return nil, rr.streamError(err)
	}
	rr.line = 1

	header := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := CleanHeader(h)
		if strings.IndexFunc(name, invalidHeaderRune) >= 0 {
			return nil, &StreamError{Line: 1, Err: fmt.Errorf("header column %d is not readable text", i+1)}
		}
		if name == "" {
			return nil, &StreamError{Line: 1, Err: fmt.Errorf("header column %d is blank", i+1)}
		}
		if prev, dup := seen[name]; dup {
			return nil, &StreamError{Line: 1, Err: fmt.Errorf("header column %q repeats column %d", name, prev+1)}
		}
		seen[name] = i
		header[i] = name
	}
	for _, dim := range Dimensions {
		if _, ok := seen[dim.Column()]; !ok {
			return nil, &StreamError{Line: 1, Err: fmt.Errorf("%w: %q", ErrMissingColumn, dim.Column())}
		}
	}
	rr.header = header
	return rr, nil
}

// Header returns the normalized header names.
func (r *RecordReader) Header() []string {
	return r.header
}

// BytesRead reports how much of the input has been consumed.
func (r *RecordReader) BytesRead() int64 {
	return r.counter.BytesRead()
}

// Rows returns the remaining records as a sequence. The sequence stops at
// the first error, which is yielded as a *StreamError with a nil Row.
func (r *RecordReader) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			rec, err := r.csv.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, r.streamError(err))
				return
			}
			r.line, _ = r.csv.FieldPos(0)

			row := make(Row, len(r.header))
			for i, name := range r.header {
				row[name] = rec[i]
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// streamError attaches the failing line. encoding/csv reports field count
// mismatches and quoting problems as *csv.ParseError with its own line.
func (r *RecordReader) streamError(err error) *StreamError {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &StreamError{Line: pe.Line, Err: pe.Err}
	}
	return &StreamError{Line: r.line + 1, Err: err}
}
