// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/fingate/internal/agent"
	controlhttp "github.com/ManuGH/fingate/internal/control/http"
	"github.com/ManuGH/fingate/internal/journal"
	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
	"github.com/ManuGH/fingate/internal/stream"
	"github.com/ManuGH/fingate/internal/telemetry"
)

// Relay results, used for metrics and span attributes.
const (
	resultCompleted     = "completed"
	resultCanceled      = "canceled"
	resultStreamError   = "stream_error"
	resultUpstreamError = "upstream_error"
)

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// parseChat extracts the forwarded history and the prompt (the last
// message's content).
func parseChat(w http.ResponseWriter, r *http.Request, maxBytes int64) (json.RawMessage, []chatMessage, string, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)

	var req chatRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, "", http.StatusRequestEntityTooLarge, err
		}
		return nil, nil, "", http.StatusBadRequest, err
	}
	var msgs []chatMessage
	if len(req.Messages) == 0 || string(req.Messages) == "null" {
		return nil, nil, "", http.StatusBadRequest, errors.New("messages are required")
	}
	if err := json.Unmarshal(req.Messages, &msgs); err != nil {
		return nil, nil, "", http.StatusBadRequest, err
	}
	if len(msgs) == 0 {
		return nil, nil, "", http.StatusBadRequest, errors.New("messages are required")
	}
	prompt := msgs[len(msgs)-1].Content
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, "", http.StatusBadRequest, errors.New("prompt is empty")
	}
	return req.Messages, msgs, prompt, 0, nil
}

// handleChat relays one agent run as an AI SDK data stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get()

	raw, msgs, prompt, status, err := parseChat(w, r, cfg.Server.MaxBodyBytes)
	if err != nil {
		metrics.RecordChatRejected()
		if status == http.StatusRequestEntityTooLarge {
			writeProblem(w, r, status, "chat/too_large", "Payload Too Large", "PAYLOAD_TOO_LARGE", err.Error())
			return
		}
		writeProblem(w, r, status, "chat/invalid_request", "Bad Request", "INVALID_REQUEST", err.Error())
		return
	}

	runID := uuid.NewString()
	ctx := xglog.ContextWithRunID(r.Context(), runID)
	logger := xglog.WithComponentFromContext(ctx, "chat")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.ChatRequestAttributes(runID, len(msgs), len(prompt))...)

	done := metrics.ChatRelayStarted()
	rec := s.journal.Begin(journal.Run{
		ID:        runID,
		RequestID: xglog.RequestIDFromContext(ctx),
		Prompt:    prompt,
		StartedAt: s.now(),
	})

	logger.Info().
		Str(xglog.FieldEvent, "chat.relay_start").
		Int("messages", len(msgs)).
		Int("prompt_length", len(prompt)).
		Msg("relaying chat to agent")

	body, err := s.agent.Query(ctx, agent.QueryRequest{Prompt: prompt, Messages: raw})
	if err != nil {
		result := resultUpstreamError
		runStatus := journal.RunFailed
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			result, runStatus = resultCanceled, journal.RunCanceled
		} else {
			s.recordRelay(err)
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "chat.upstream_failed").
				Str("kind", agent.Kind(err)).
				Msg("agent query failed")
		}
		done(result)
		rec.Finish(runStatus, stream.Stats{}, err)
		span.SetAttributes(telemetry.ErrorAttributes(agent.Kind(err))...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent query failed")
		writeAgentError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(controlhttp.HeaderDataStream, "v1")
	h.Set(controlhttp.HeaderRunID, runID)
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	stats, relayErr := stream.Relay(ctx, body, stream.NewWriterSink(w, rc), stream.Options{
		DescriptionMaxWords: cfg.Stream.DescriptionMaxWords,
		MaxLineBytes:        cfg.Stream.MaxLineBytes,
		EmitFinish:          cfg.Stream.EmitFinish,
		Observer:            observers{rec, spanObserver{span}},
		Logger:              logger,
		Now:                 s.now,
	})

	result, runStatus := resultCompleted, journal.RunCompleted
	switch {
	case relayErr == nil:
		s.recordRelay(nil)
	case ctx.Err() != nil:
		result, runStatus = resultCanceled, journal.RunCanceled
	default:
		result, runStatus = resultStreamError, journal.RunFailed
		s.recordRelay(relayErr)
		span.RecordError(relayErr)
		span.SetStatus(codes.Error, "relay failed")
	}
	done(result)
	rec.Finish(runStatus, stats, relayErr)
	span.SetAttributes(telemetry.ChatResultAttributes(result, stats.Lines, stats.Frames, stats.Malformed, stats.ToolsStarted, stats.Orphaned)...)

	event := logger.Info()
	if result == resultStreamError {
		event = logger.Warn().Err(relayErr)
	}
	event.
		Str(xglog.FieldEvent, "chat.relay_finished").
		Str("result", result).
		Int("lines", stats.Lines).
		Int("frames", stats.Frames).
		Int("malformed_lines", stats.Malformed).
		Int("tool_calls", stats.ToolsStarted).
		Int("orphaned_tools", stats.Orphaned).
		Bool("agent_completed", stats.Completed).
		Msg("chat relay finished")
}

func (s *Server) recordRelay(err error) {
	if s.relays != nil {
		s.relays.Record(s.now(), err)
	}
}

// observers fans tool call notifications out in order.
type observers []stream.Observer

func (o observers) ToolStarted(call stream.ToolCall) {
	for _, obs := range o {
		obs.ToolStarted(call)
	}
}

func (o observers) ToolFinished(call stream.ToolCall) {
	for _, obs := range o {
		obs.ToolFinished(call)
	}
}

// spanObserver adds tool call events to the request span.
type spanObserver struct {
	span trace.Span
}

func (o spanObserver) ToolStarted(call stream.ToolCall) {
	o.span.AddEvent("tool.start", trace.WithAttributes(telemetry.ToolAttributes(call.ID, call.Tool, string(call.Card))...))
}

func (o spanObserver) ToolFinished(call stream.ToolCall) {
	o.span.AddEvent("tool."+string(call.Outcome), trace.WithAttributes(telemetry.ToolAttributes(call.ID, call.Tool, string(call.Card))...))
}
