// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
)

// Outcome is the terminal state of a tool call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeOrphaned Outcome = "orphaned"
)

// PendingCall is what a tool start leaves behind for its terminal event.
type PendingCall struct {
	ToolID      json.RawMessage
	Tool        json.RawMessage
	CLITool     json.RawMessage
	Metadata    json.RawMessage
	Args        json.RawMessage
	Card        Card
	Description string
	StartedAt   time.Time
}

// ToolCall is reported to observers.
type ToolCall struct {
	ID          string
	Tool        string
	CLITool     string
	Card        Card
	Description string
	Metadata    json.RawMessage
	Args        json.RawMessage
	Result      json.RawMessage
	Error       string
	Outcome     Outcome
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration of the call; zero while it is still open.
func (c ToolCall) Duration() time.Duration {
	if c.FinishedAt.IsZero() || c.StartedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// Observer is notified about tool call lifecycles. Implementations must not
// block; they run on the relay loop.
type Observer interface {
	ToolStarted(call ToolCall)
	ToolFinished(call ToolCall)
}

// TranslatorOptions tune a Translator.
type TranslatorOptions struct {
	DescriptionMaxWords int
	Observer            Observer
	Logger              zerolog.Logger
	Now                 func() time.Time
}

// Translator converts upstream events to frames. It is not safe for
// concurrent use; one Translator serves one stream.
type Translator struct {
	maxWords    int
	observer    Observer
	logger      zerolog.Logger
	now         func() time.Time
	started     time.Time
	pending     map[string]*PendingCall
	description string
	stats       Stats
}

// NewTranslator returns a Translator with an empty tool table.
func NewTranslator(opts TranslatorOptions) *Translator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Translator{
		maxWords: opts.DescriptionMaxWords,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      now,
		started:  now(),
		pending:  make(map[string]*PendingCall),
	}
}

type textPart struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Text  string `json:"text"`
}

type toolStartPart struct {
	Type        string          `json:"type"`
	Event       string          `json:"event"`
	ToolID      json.RawMessage `json:"tool_id,omitempty"`
	Tool        json.RawMessage `json:"tool,omitempty"`
	CLITool     json.RawMessage `json:"cli_tool,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Card        Card            `json:"card"`
	Description string          `json:"description,omitempty"`
}

type toolResultPart struct {
	Type       string          `json:"type"`
	Event      string          `json:"event"`
	ToolID     json.RawMessage `json:"tool_id,omitempty"`
	CLITool    json.RawMessage `json:"cli_tool"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Tool       json.RawMessage `json:"tool,omitempty"`
	Card       Card            `json:"card"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
}

type toolErrorPart struct {
	Type       string          `json:"type"`
	Event      string          `json:"event"`
	ToolID     json.RawMessage `json:"tool_id,omitempty"`
	CLITool    json.RawMessage `json:"cli_tool"`
	Error      json.RawMessage `json:"error,omitempty"`
	Tool       json.RawMessage `json:"tool,omitempty"`
	Card       Card            `json:"card"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
}

type completedPart struct {
	Type         string          `json:"type"`
	Event        string          `json:"event"`
	RuntimeMS    json.RawMessage `json:"runtime_ms"`
	PendingTools int             `json:"pending_tools"`
}

var unknownCLITool = json.RawMessage(`"unknown"`)

// Translate maps one event to its frames. Events that are not data
// envelopes, or carry an unknown name, produce no frames.
func (t *Translator) Translate(ev Event) ([]Frame, error) {
	if ev.Type != TypeData {
		t.stats.Ignored++
		return nil, nil
	}
	metrics.ObserveAgentEvent(ev.Event)

	switch ev.Event {
	case EventText:
		return t.text(ev)
	case EventCompleted:
		return t.completed(ev)
	case EventToolStart:
		return t.toolStart(ev)
	case EventToolResult:
		return t.toolResult(ev)
	case EventToolError:
		return t.toolError(ev)
	case EventLog:
		t.stats.Logs++
		return []Frame{RawDataFrame(ev.Raw)}, nil
	case EventError:
		return t.agentError(ev)
	default:
		t.stats.Ignored++
		t.logger.Debug().Str(xglog.FieldAgentEvent, ev.Event).Msg("dropping unhandled agent event")
		return nil, nil
	}
}

func (t *Translator) text(ev Event) ([]Frame, error) {
	text := stringValue(ev.Text)
	if text == "" {
		return nil, nil
	}
	class := Classify(text, t.maxWords)
	metrics.ObserveTextClass(class.String())

	if class == Description {
		t.stats.Descriptions++
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			t.description = trimmed
		}
		f, err := DataFrame(textPart{Type: TypeData, Event: EventText, Text: text})
		if err != nil {
			return nil, err
		}
		return []Frame{f}, nil
	}

	t.stats.ContentTexts++
	t.description = ""
	f, err := TextFrame(text)
	if err != nil {
		return nil, err
	}
	return []Frame{f}, nil
}

func (t *Translator) completed(ev Event) ([]Frame, error) {
	t.stats.Completed = true
	var frames []Frame
	if summary := stringValue(ev.Summary); summary != "" {
		f, err := TextFrame(summary)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	runtime := ev.RuntimeMS
	if !truthy(runtime) {
		ms := t.now().Sub(t.started).Milliseconds()
		runtime = json.RawMessage(strconv.FormatInt(ms, 10))
	}
	f, err := DataFrame(completedPart{
		Type:         TypeData,
		Event:        EventCompleted,
		RuntimeMS:    runtime,
		PendingTools: len(t.pending),
	})
	if err != nil {
		return nil, err
	}
	return append(frames, f), nil
}

func (t *Translator) toolStart(ev Event) ([]Frame, error) {
	key := ev.ToolKey()
	if _, dup := t.pending[key]; dup {
		t.logger.Warn().
			Str(xglog.FieldToolID, key).
			Msg("tool id started twice, replacing pending call")
	}

	call := &PendingCall{
		ToolID:      ev.ToolID,
		Tool:        ev.Tool,
		CLITool:     ev.CLITool,
		Metadata:    ev.Metadata,
		Args:        ev.Args,
		Card:        CardFor(rawString(ev.Tool), rawString(ev.CLITool)),
		Description: t.description,
		StartedAt:   t.now(),
	}
	t.pending[key] = call
	t.description = ""
	t.stats.ToolsStarted++

	t.logger.Debug().
		Str(xglog.FieldToolID, key).
		Str(xglog.FieldTool, rawString(ev.Tool)).
		Str(xglog.FieldCLITool, rawString(ev.CLITool)).
		Str(xglog.FieldCard, string(call.Card)).
		Bool("has_args", ev.Args != nil).
		Msg("forwarding tool start")

	if t.observer != nil {
		t.observer.ToolStarted(t.toolCall(key, call))
	}

	f, err := DataFrame(toolStartPart{
		Type:        TypeData,
		Event:       EventToolStart,
		ToolID:      ev.ToolID,
		Tool:        ev.Tool,
		CLITool:     ev.CLITool,
		Metadata:    ev.Metadata,
		Args:        ev.Args,
		Card:        call.Card,
		Description: call.Description,
	})
	if err != nil {
		return nil, err
	}
	return []Frame{f}, nil
}

// take removes the pending call for ev, if any.
func (t *Translator) take(ev Event) (string, *PendingCall) {
	key := ev.ToolKey()
	call, ok := t.pending[key]
	if !ok {
		t.stats.Unmatched++
		t.logger.Warn().
			Str(xglog.FieldToolID, key).
			Str(xglog.FieldAgentEvent, ev.Event).
			Msg("terminal tool event without matching start")
		return key, nil
	}
	delete(t.pending, key)
	return key, call
}

func (t *Translator) finish(key string, call *PendingCall, outcome Outcome, result json.RawMessage, errMsg string) *int64 {
	if call == nil {
		metrics.ObserveToolCall(string(outcome), string(CardGeneric), 0)
		return nil
	}
	done := t.now()
	d := done.Sub(call.StartedAt)
	ms := d.Milliseconds()
	metrics.ObserveToolCall(string(outcome), string(call.Card), d)

	if t.observer != nil {
		tc := t.toolCall(key, call)
		tc.Outcome = outcome
		tc.Result = result
		tc.Error = errMsg
		tc.FinishedAt = done
		t.observer.ToolFinished(tc)
	}
	return &ms
}

func (t *Translator) toolResult(ev Event) ([]Frame, error) {
	key, call := t.take(ev)
	t.stats.ToolsSucceeded++

	part := toolResultPart{
		Type:    TypeData,
		Event:   EventToolResult,
		ToolID:  ev.ToolID,
		CLITool: unknownCLITool,
		Result:  ev.Result,
		Card:    CardGeneric,
	}
	if call != nil {
		if truthy(call.CLITool) {
			part.CLITool = call.CLITool
		}
		part.Metadata = call.Metadata
		part.Tool = call.Tool
		part.Card = call.Card
	}
	part.DurationMS = t.finish(key, call, OutcomeSuccess, ev.Result, "")

	f, err := DataFrame(part)
	if err != nil {
		return nil, err
	}
	return []Frame{f}, nil
}

func (t *Translator) toolError(ev Event) ([]Frame, error) {
	key, call := t.take(ev)
	t.stats.ToolsFailed++

	part := toolErrorPart{
		Type:    TypeData,
		Event:   EventToolError,
		ToolID:  ev.ToolID,
		CLITool: unknownCLITool,
		Error:   ev.Error,
		Card:    CardGeneric,
	}
	if call != nil {
		if truthy(call.CLITool) {
			part.CLITool = call.CLITool
		}
		part.Tool = call.Tool
		part.Card = call.Card
	}
	part.DurationMS = t.finish(key, call, OutcomeError, nil, rawString(ev.Error))

	f, err := DataFrame(part)
	if err != nil {
		return nil, err
	}
	return []Frame{f}, nil
}

func (t *Translator) agentError(ev Event) ([]Frame, error) {
	t.stats.AgentErrors++
	msg := rawString(ev.Error)
	if msg == "" {
		msg = "agent reported an error"
	}
	t.logger.Warn().Str("agent_error", msg).Msg("agent reported an error")
	f, err := ErrorFrame(msg)
	if err != nil {
		return nil, err
	}
	return []Frame{f}, nil
}

// Pending returns the ids of tool calls still open, sorted.
func (t *Translator) Pending() []string {
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Drain closes every open tool call as orphaned and empties the table.
func (t *Translator) Drain() []ToolCall {
	ids := t.Pending()
	out := make([]ToolCall, 0, len(ids))
	done := t.now()
	for _, id := range ids {
		call := t.pending[id]
		delete(t.pending, id)
		tc := t.toolCall(id, call)
		tc.Outcome = OutcomeOrphaned
		tc.FinishedAt = done
		out = append(out, tc)
		t.stats.Orphaned++
		metrics.ObserveToolCall(string(OutcomeOrphaned), string(call.Card), tc.Duration())
		if t.observer != nil {
			t.observer.ToolFinished(tc)
		}
	}
	return out
}

// Stats returns the counters collected so far.
func (t *Translator) Stats() Stats {
	return t.stats
}

func (t *Translator) toolCall(key string, call *PendingCall) ToolCall {
	return ToolCall{
		ID:          rawStringOr(call.ToolID, key),
		Tool:        rawString(call.Tool),
		CLITool:     rawString(call.CLITool),
		Card:        call.Card,
		Description: call.Description,
		Metadata:    call.Metadata,
		Args:        call.Args,
		StartedAt:   call.StartedAt,
	}
}

func rawStringOr(raw json.RawMessage, fallback string) string {
	if s := rawString(raw); s != "" {
		return s
	}
	return fallback
}
