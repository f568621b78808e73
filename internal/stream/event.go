// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TypeData is the only envelope type the translator acts on.
const TypeData = "data"

// Upstream event names.
const (
	EventText       = "agent.text"
	EventToolStart  = "agent.tool-start"
	EventToolResult = "agent.tool-result"
	EventToolError  = "agent.tool-error"
	EventCompleted  = "agent.completed"
	EventLog        = "agent.log"
	EventError      = "agent.error"
)

// ErrMalformedEvent marks a line that is not a JSON object.
var ErrMalformedEvent = errors.New("stream: malformed event")

// Event is one decoded upstream line. Structured payloads stay raw so they
// are re-emitted byte for byte; a nil RawMessage means the key was absent.
// Type and Event are empty unless the line carries them as JSON strings, so
// a mistyped key routes nowhere instead of failing the whole line.
type Event struct {
	Type      string          `json:"-"`
	Event     string          `json:"-"`
	Text      json.RawMessage `json:"text"`
	Summary   json.RawMessage `json:"summary"`
	ToolID    json.RawMessage `json:"tool_id"`
	Tool      json.RawMessage `json:"tool"`
	CLITool   json.RawMessage `json:"cli_tool"`
	Metadata  json.RawMessage `json:"metadata"`
	Args      json.RawMessage `json:"args"`
	Result    json.RawMessage `json:"result"`
	Error     json.RawMessage `json:"error"`
	RuntimeMS json.RawMessage `json:"runtime_ms"`

	// Raw is the compacted source object, used when an event is forwarded
	// unchanged.
	Raw json.RawMessage `json:"-"`
}

// Decode parses one NDJSON line.
func Decode(line []byte) (Event, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEvent)
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.Type = stringValue(env.Type)
	ev.Event = stringValue(env.Event)

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.Raw = compact.Bytes()
	return ev, nil
}

// envelope holds the routing keys before their types are checked.
type envelope struct {
	Type  json.RawMessage `json:"type"`
	Event json.RawMessage `json:"event"`
}

// ToolKey is the map key for a tool id. Ids are opaque JSON values, so the
// raw encoding is the identity.
func (e Event) ToolKey() string {
	return string(bytes.TrimSpace(e.ToolID))
}

// rawString returns the decoded string for a JSON string value, or the raw
// text for any other value. Empty for absent or null.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// stringValue returns raw decoded as a JSON string, or "" for any other value.
func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// truthy follows the browser's notion of a falsy JSON value.
func truthy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
