// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAgentUnavailable = errors.New("agent: host unreachable or transport failure")
	ErrAgentStatus      = errors.New("agent: non-success status")
	ErrAgentTimeout     = errors.New("agent: request timed out")
	ErrAgentBadResponse = errors.New("agent: invalid response")
)

const maxErrorBodyBytes = 512

// Error wraps a sentinel with the context of the failed call.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // lower-level cause, e.g. *net.OpError
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("agent: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// ErrAgentTimeout as well as context.Canceled.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// Kind is a short label for metrics and problem codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAgentTimeout):
		return "timeout"
	case errors.Is(err, ErrAgentStatus):
		return "bad_status"
	case errors.Is(err, ErrAgentBadResponse):
		return "bad_response"
	default:
		return "unavailable"
	}
}

var secretPattern = regexp.MustCompile(`(?i)\b(token|sid|password|api[_-]?key|secret)=([^\s&"']+)`)

// wrapError classifies a failed call. Exactly one of err or a non-2xx status
// is expected; body is the (possibly partial) upstream response.
func wrapError(op string, err error, status int, body []byte) error {
	e := &Error{Operation: op, Status: status, Err: err, Body: sanitizeBody(body)}
	switch {
	case err != nil && isTimeout(err):
		e.Sentinel = ErrAgentTimeout
	case err != nil:
		e.Sentinel = ErrAgentUnavailable
	case status != 0:
		e.Sentinel = ErrAgentStatus
	default:
		e.Sentinel = ErrAgentBadResponse
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sanitizeBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return ""
	}
	s = secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
	if len(s) > maxErrorBodyBytes {
		cut := s[:maxErrorBodyBytes]
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
		s = cut + "…"
	}
	return s
}
