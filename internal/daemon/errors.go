// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

// Sentinel errors for wiring and lifecycle misuse.
var (
	ErrMissingLogger     = errors.New("logger is required")
	ErrMissingAPIHandler = errors.New("API handler is required")
	ErrMissingManager    = errors.New("manager is required")
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrServerStartFailed wraps listener bind failures from Start.
	ErrServerStartFailed = errors.New("server failed to start")
)
