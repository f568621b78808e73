// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
)

const malformedExcerptBytes = 200

// Stats summarises one relay.
type Stats struct {
	Lines          int
	Malformed      int
	Frames         int
	Ignored        int
	Descriptions   int
	ContentTexts   int
	Logs           int
	AgentErrors    int
	ToolsStarted   int
	ToolsSucceeded int
	ToolsFailed    int
	Unmatched      int
	Orphaned       int
	Completed      bool
}

// Sink receives frames. Flush is called once per upstream line that produced
// output, so the client sees events as they happen.
type Sink interface {
	WriteFrame(Frame) error
	Flush() error
}

// Flusher is the subset of http.ResponseController used by WriterSink.
type Flusher interface {
	Flush() error
}

// WriterSink writes frames to an io.Writer and flushes through an optional
// Flusher.
type WriterSink struct {
	w       io.Writer
	flusher Flusher
	buf     []byte
}

// NewWriterSink returns a sink over w. flusher may be nil.
func NewWriterSink(w io.Writer, flusher Flusher) *WriterSink {
	return &WriterSink{w: w, flusher: flusher}
}

// WriteFrame encodes and writes f.
func (s *WriterSink) WriteFrame(f Frame) error {
	s.buf = f.AppendTo(s.buf[:0])
	_, err := s.w.Write(s.buf)
	return err
}

// Flush pushes buffered bytes to the client.
func (s *WriterSink) Flush() error {
	if s.flusher == nil {
		return nil
	}
	return s.flusher.Flush()
}

// Options configure Relay.
type Options struct {
	DescriptionMaxWords int
	MaxLineBytes        int
	// EmitFinish appends a finish frame when the stream ends.
	EmitFinish bool
	Observer   Observer
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Relay reads NDJSON events from src until EOF, translating each into frames
// written to sink. Malformed lines are logged and skipped. A read failure
// writes an error frame and ends the relay with the error; a sink failure
// (client gone) ends it without further writes.
func Relay(ctx context.Context, src io.Reader, sink Sink, opts Options) (Stats, error) {
	logger := opts.Logger
	tr := NewTranslator(TranslatorOptions{
		DescriptionMaxWords: opts.DescriptionMaxWords,
		Observer:            opts.Observer,
		Logger:              logger,
		Now:                 opts.Now,
	})
	lines := NewLineReader(src, opts.MaxLineBytes)

	var (
		lineCount int
		malformed int
		frames    int
	)
	collect := func() Stats {
		s := tr.Stats()
		s.Lines = lineCount
		s.Malformed = malformed
		s.Frames = frames
		return s
	}

	write := func(fs []Frame) error {
		for _, f := range fs {
			if err := sink.WriteFrame(f); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			frames++
			metrics.ObserveFrame(f.Code)
		}
		if len(fs) > 0 {
			if err := sink.Flush(); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
		}
		return nil
	}

	finish := func(reason string) {
		for _, call := range tr.Drain() {
			logger.Warn().
				Str(xglog.FieldToolID, call.ID).
				Str(xglog.FieldTool, call.Tool).
				Str(xglog.FieldCLITool, call.CLITool).
				Msg("stream ended with tool call still open")
		}
		if opts.EmitFinish {
			_ = write([]Frame{FinishFrame(reason)})
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			tr.Drain()
			return collect(), err
		}

		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			finish(FinishStop)
			return collect(), nil
		}
		if errors.Is(err, ErrLineTooLong) {
			lineCount++
			malformed++
			metrics.IncMalformedLine("too_long")
			logger.Warn().
				Int(xglog.FieldLineNo, lines.LineNo()).
				Int("max_bytes", lines.max).
				Msg("skipping oversized NDJSON line")
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				tr.Drain()
				return collect(), ctxErr
			}
			logger.Error().Err(err).Str(xglog.FieldEvent, "relay.read_failed").Msg("stream error")
			if f, ferr := ErrorFrame(err.Error()); ferr == nil {
				_ = write([]Frame{f})
			}
			finish(FinishError)
			return collect(), fmt.Errorf("read upstream: %w", err)
		}
		lineCount++

		ev, err := Decode(line)
		if err != nil {
			malformed++
			metrics.IncMalformedLine("invalid_json")
			logger.Warn().
				Err(err).
				Int(xglog.FieldLineNo, lines.LineNo()).
				Str(xglog.FieldLine, excerpt(line)).
				Msg("failed to parse NDJSON line")
			continue
		}

		out, err := tr.Translate(ev)
		if err != nil {
			malformed++
			metrics.IncMalformedLine("encode_failed")
			logger.Warn().Err(err).Str(xglog.FieldAgentEvent, ev.Event).Msg("failed to encode frame")
			continue
		}
		if err := write(out); err != nil {
			tr.Drain()
			return collect(), err
		}
	}
}

func excerpt(line []byte) string {
	if len(line) <= malformedExcerptBytes {
		return string(line)
	}
	cut := line[:malformedExcerptBytes]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "…"
}
