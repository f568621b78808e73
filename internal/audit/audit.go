// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package audit provides structured audit logging for operator actions and
// rejected traffic. It follows the WHO/WHAT/WHEN pattern.
package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fingate/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"
	EventAPIRateLimit      EventType = "api.ratelimit"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string // WHO: client IP or "system"
	Action     string // WHAT
	Resource   string
	Result     string // success, failure, denied
	RemoteAddr string
	UserAgent  string
	RequestID  string
	Details    map[string]string
}

// Logger writes audit events through the shared log pipeline, so they also
// land in the recent-log buffer.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return &Logger{
		logger: log.WithComponent("audit").With().Str("log_type", "audit").Logger(),
	}
}

// Log writes an audit event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str("remote_addr", event.RemoteAddr)
	}
	if event.UserAgent != "" {
		logEvent.Str("user_agent", event.UserAgent)
	}
	if event.RequestID != "" {
		logEvent.Str(log.FieldRequestID, event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogRequest fills the client fields of event from r and logs it.
func (l *Logger) LogRequest(r *http.Request, event Event) {
	if r != nil {
		addr := remoteHost(r.RemoteAddr)
		if event.Actor == "" {
			event.Actor = addr
		}
		if event.RemoteAddr == "" {
			event.RemoteAddr = addr
		}
		if event.UserAgent == "" {
			event.UserAgent = r.UserAgent()
		}
		if event.RequestID == "" {
			event.RequestID = log.RequestIDFromContext(r.Context())
		}
	}
	l.Log(event)
}

// ConfigReload logs a configuration reload. r is nil for reloads not
// triggered over HTTP; actor then names the trigger (e.g. "SIGHUP").
func (l *Logger) ConfigReload(r *http.Request, actor string, err error, restartRequired []string) {
	event := Event{
		Type:     EventConfigReload,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   "success",
	}
	if len(restartRequired) > 0 {
		event.Details = map[string]string{"restart_required": strings.Join(restartRequired, ",")}
	}
	if err != nil {
		event.Type = EventConfigReloadError
		event.Result = "failure"
		event.Details = map[string]string{"error": err.Error()}
	}
	l.LogRequest(r, event)
}

// RateLimited logs a request rejected by a rate limiter.
func (l *Logger) RateLimited(r *http.Request, scope string) {
	l.LogRequest(r, Event{
		Type:     EventAPIRateLimit,
		Action:   "rate limit exceeded",
		Resource: r.URL.Path,
		Result:   "denied",
		Details:  map[string]string{"scope": scope},
	})
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
