// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultMaxLineBytes bounds a single upstream event. Tool results can carry
// whole filings, so the bound is generous.
const DefaultMaxLineBytes = 8 << 20

// ErrLineTooLong is returned for a line over the bound. The reader skips to
// the next newline and stays usable.
var ErrLineTooLong = errors.New("stream: line exceeds maximum length")

// LineReader splits a byte stream on '\n', dropping blank lines and a
// trailing '\r'. An unterminated final line is returned at EOF, so a last
// event written without a newline is still delivered. The bound counts line
// content only, never the terminating '\n'.
type LineReader struct {
	r      *bufio.Reader
	max    int
	buf    []byte
	lineNo int
}

// NewLineReader wraps r. A non-positive max selects DefaultMaxLineBytes.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = DefaultMaxLineBytes
	}
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024), max: max}
}

// LineNo is the 1-based number of the line last returned, blank lines included.
func (lr *LineReader) LineNo() int {
	return lr.lineNo
}

// Next returns the next non-blank line. The slice is valid until the next
// call. It returns io.EOF at the end of input.
func (lr *LineReader) Next() ([]byte, error) {
	for {
		lr.buf = lr.buf[:0]
		tooLong := false
		atEOF := false

		for {
			chunk, err := lr.r.ReadSlice('\n')
			if !tooLong {
				limit := lr.max
				if n := len(chunk); n > 0 && chunk[n-1] == '\n' {
					limit++
				}
				if len(lr.buf)+len(chunk) > limit {
					tooLong = true
					lr.buf = lr.buf[:0]
				} else {
					lr.buf = append(lr.buf, chunk...)
				}
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if errors.Is(err, io.EOF) {
				atEOF = true
				break
			}
			if err != nil {
				return nil, err
			}
			break
		}

		if atEOF && !tooLong && len(lr.buf) == 0 {
			return nil, io.EOF
		}

		lr.lineNo++
		if tooLong {
			return nil, ErrLineTooLong
		}

		line := bytes.TrimRight(lr.buf, "\n")
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			if atEOF {
				return nil, io.EOF
			}
			continue
		}
		return line, nil
	}
}
