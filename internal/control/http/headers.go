// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package http holds header and JSON key names shared by the HTTP layers.
package http

// Canonical header names.
const (
	// HeaderRequestID is the header used for request correlation.
	HeaderRequestID = "X-Request-ID"
	// HeaderDataStream marks a response as an AI SDK data stream.
	HeaderDataStream = "X-Vercel-AI-Data-Stream"
	// HeaderRunID exposes the journal run id of a chat relay.
	HeaderRunID = "X-Fingate-Run-ID"
)

// Canonical JSON field names.
const (
	// JSONKeyRequestID is the JSON key for request correlation in problem bodies.
	JSONKeyRequestID = "requestId"
)
