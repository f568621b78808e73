// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the gateway.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPRequestIDKey  = "http.request_id"

	// Chat relay attributes
	ChatRunIDKey        = "chat.run_id"
	ChatMessagesKey     = "chat.messages"
	ChatPromptLengthKey = "chat.prompt_length"
	ChatLinesKey        = "chat.lines"
	ChatFramesKey       = "chat.frames"
	ChatMalformedKey    = "chat.malformed_lines"
	ChatToolCallsKey    = "chat.tool_calls"
	ChatOrphanedKey     = "chat.orphaned_tools"
	ChatResultKey       = "chat.result"

	// Tool call event attributes
	ToolIDKey   = "tool.id"
	ToolNameKey = "tool.name"
	ToolCardKey = "tool.card"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ChatRequestAttributes describes an incoming chat request.
// The prompt text itself is never recorded.
func ChatRequestAttributes(runID string, messages, promptLen int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if runID != "" {
		attrs = append(attrs, attribute.String(ChatRunIDKey, runID))
	}
	return append(attrs,
		attribute.Int(ChatMessagesKey, messages),
		attribute.Int(ChatPromptLengthKey, promptLen),
	)
}

// ChatResultAttributes summarises a finished relay.
func ChatResultAttributes(result string, lines, frames, malformed, tools, orphaned int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ChatResultKey, result),
		attribute.Int(ChatLinesKey, lines),
		attribute.Int(ChatFramesKey, frames),
		attribute.Int(ChatMalformedKey, malformed),
		attribute.Int(ChatToolCallsKey, tools),
		attribute.Int(ChatOrphanedKey, orphaned),
	}
}

// ToolAttributes identifies a tool call on a span event.
func ToolAttributes(id, tool, card string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(ToolIDKey, id)}
	if tool != "" {
		attrs = append(attrs, attribute.String(ToolNameKey, tool))
	}
	if card != "" {
		attrs = append(attrs, attribute.String(ToolCardKey, card))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
