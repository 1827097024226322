package core

// streaming.go holds the byte-level wrappers applied to an upload before
// it reaches the CSV parser:
//
//   - SkipBOM drops a leading UTF-8 byte order mark written by Excel.
//   - UTF8Sanitizer replaces each invalid UTF-8 byte with '?'.
//   - CountingReader tracks bytes consumed for logs and metrics.
//
// All three work in constant memory regardless of file size.

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader that yields r without a leading UTF-8 BOM.
// A read error hit while peeking is returned by the first Read.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

const sanitizerReadSize = 32 * 1024

// UTF8Sanitizer rewrites invalid UTF-8 bytes to '?' on the fly. The
// replacement is one byte for one byte, so it happens in place and output
// offsets match input offsets.
type UTF8Sanitizer struct {
	r       io.Reader
	buf     []byte
	settled int // leading bytes of buf already checked
	err     error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r}
}

// Read implements io.Reader. A multi-byte rune split across underlying
// reads is held back until it is complete.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for s.settled == 0 {
		if s.err != nil {
			// A partial rune left at EOF is invalid and gets replaced.
			s.settle(true)
			if s.settled == 0 {
				return 0, s.err
			}
			break
		}
		s.fill()
		s.settle(s.err != nil)
	}

	n := copy(p, s.buf[:s.settled])
	s.buf = s.buf[n:]
	s.settled -= n
	return n, nil
}

func (s *UTF8Sanitizer) fill() {
	if cap(s.buf)-len(s.buf) < sanitizerReadSize {
		grown := make([]byte, len(s.buf), len(s.buf)+sanitizerReadSize)
		copy(grown, s.buf)
		s.buf = grown
	}
	n, err := s.r.Read(s.buf[len(s.buf) : len(s.buf)+sanitizerReadSize])
	s.buf = s.buf[:len(s.buf)+n]
	s.err = err
}

func (s *UTF8Sanitizer) settle(atEOF bool) {
	for s.settled < len(s.buf) {
		rest := s.buf[s.settled:]
		if !atEOF && !utf8.FullRune(rest) {
			return
		}
		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size == 1 {
			rest[0] = '?'
		}
		s.settled += size
	}
}

// CountingReader tracks bytes read. BytesRead is safe to call from another
// goroutine while reading is in progress.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n.Load()
}

// WrapForStreaming applies BOM skipping, then UTF-8 sanitization, then
// counting. BOM removal must come first; the sanitizer would otherwise see
// a valid rune and keep it.
func WrapForStreaming(r io.Reader) *CountingReader {
	return NewCountingReader(NewUTF8Sanitizer(SkipBOM(r)))
}
