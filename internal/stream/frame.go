// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"bytes"
	"encoding/json"
)

// Frame codes of the chat data stream.
const (
	CodeText   byte = '0'
	CodeData   byte = '2'
	CodeError  byte = '3'
	CodeFinish byte = 'd'
)

// Finish reasons carried by the finish frame.
const (
	FinishStop  = "stop"
	FinishError = "error"
)

// Frame is one outbound line: <code>:<payload>\n.
type Frame struct {
	Code    byte
	Payload []byte
}

// AppendTo appends the wire encoding of f to b.
func (f Frame) AppendTo(b []byte) []byte {
	b = append(b, f.Code, ':')
	b = append(b, f.Payload...)
	return append(b, '\n')
}

// String returns the wire encoding.
func (f Frame) String() string {
	return string(f.AppendTo(nil))
}

// TextFrame carries answer text.
func TextFrame(text string) (Frame, error) {
	p, err := marshal(text)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Code: CodeText, Payload: p}, nil
}

// DataFrame carries one annotation object wrapped in a single-element array.
func DataFrame(v any) (Frame, error) {
	p, err := marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return RawDataFrame(p), nil
}

// RawDataFrame wraps an already encoded JSON object.
func RawDataFrame(obj json.RawMessage) Frame {
	p := make([]byte, 0, len(obj)+2)
	p = append(p, '[')
	p = append(p, obj...)
	p = append(p, ']')
	return Frame{Code: CodeData, Payload: p}
}

// ErrorFrame carries an error message for the UI.
func ErrorFrame(msg string) (Frame, error) {
	p, err := marshal(msg)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Code: CodeError, Payload: p}, nil
}

// FinishFrame terminates the message.
func FinishFrame(reason string) Frame {
	p, _ := marshal(struct {
		FinishReason string `json:"finishReason"`
	}{reason})
	return Frame{Code: CodeFinish, Payload: p}
}

// marshal encodes without HTML escaping so payloads match what a browser's
// JSON.stringify produces.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
