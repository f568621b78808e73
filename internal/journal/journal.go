// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package journal keeps a history of chat runs and the tool calls they made.
// It backs the session timeline in the UI. Writes are asynchronous and never
// slow down or fail a relay.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Store.Run for an unknown id.
var ErrNotFound = errors.New("journal: run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// ToolStatus is the state of one tool call. "complete" and "error" are the
// values the timeline renders.
type ToolStatus string

const (
	ToolRunning  ToolStatus = "running"
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
	ToolOrphaned ToolStatus = "orphaned"
)

// Run is one chat request relayed to the agent.
type Run struct {
	ID         string       `json:"id"`
	RequestID  string       `json:"request_id,omitempty"`
	Prompt     string       `json:"prompt"`
	Status     RunStatus    `json:"status"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	ToolCalls  int          `json:"tool_calls"`
	Malformed  int          `json:"malformed_lines"`
	Tools      []ToolRecord `json:"tools,omitempty"`
}

// RunResult closes a run.
type RunResult struct {
	ID         string
	Status     RunStatus
	Error      string
	FinishedAt time.Time
	ToolCalls  int
	Malformed  int
}

// ToolRecord is one timeline entry.
type ToolRecord struct {
	RunID       string     `json:"run_id"`
	ToolID      string     `json:"tool_id"`
	Tool        string     `json:"tool"`
	CLITool     string     `json:"cli_tool,omitempty"`
	Card        string     `json:"card"`
	Description string     `json:"description,omitempty"`
	Ticker      string     `json:"ticker,omitempty"`
	Status      ToolStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"time"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMS  int64      `json:"duration,omitempty"`
}

// Store persists runs and tool calls. Implementations are safe for
// concurrent use. RecordTool upserts by (RunID, ToolID).
type Store interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, res RunResult) error
	RecordTool(ctx context.Context, rec ToolRecord) error
	// RecentTools returns the newest tool calls first.
	RecentTools(ctx context.Context, limit int) ([]ToolRecord, error)
	// Run returns one run with its tool calls in start order.
	Run(ctx context.Context, id string) (*Run, error)
	// Prune removes runs started before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Backends accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config selects and tunes a backend.
type Config struct {
	Backend   string
	Path      string // sqlite file or badger directory
	MaxRuns   int    // memory backend bound
	Retention time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates a Store for cfg.Backend. An empty backend selects memory.
func Open(cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MaxRuns), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal: sqlite backend needs a path")
		}
		return OpenSQLiteStore(cfg.Path)
	case BackendBadger:
		if cfg.Path == "" {
			return nil, fmt.Errorf("journal: badger backend needs a path")
		}
		return OpenBadgerStore(cfg.Path, cfg.Retention)
	case BackendRedis:
		return OpenRedisStore(RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Retention: cfg.Retention,
		}, logger)
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", cfg.Backend)
	}
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
