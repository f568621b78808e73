// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldToolID    = "tool_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Agent / stream fields
	FieldAgentEvent = "agent_event"
	FieldTool       = "tool"
	FieldCLITool    = "cli_tool"
	FieldCard       = "card"
	FieldLine       = "line"
	FieldLineNo     = "line_no"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
)
