// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/fingate/internal/agent"
	"github.com/ManuGH/fingate/internal/control/http/problem"
	xglog "github.com/ManuGH/fingate/internal/log"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	problem.Write(w, r, status, problemType, title, code, detail, nil)
}

// writeAgentError answers a failed upstream call before any byte was
// streamed. A canceled request gets no response.
func writeAgentError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Debug().Err(err).Msg("client went away before agent answered")
		return
	}

	var extra map[string]any
	var ae *agent.Error
	if errors.As(err, &ae) && ae.Status > 0 {
		extra = map[string]any{"upstreamStatus": ae.Status}
		if ae.Body != "" {
			extra["upstreamBody"] = ae.Body
		}
	}

	switch {
	case errors.Is(err, agent.ErrAgentTimeout):
		problem.Write(w, r, http.StatusGatewayTimeout, "agent/timeout", "Gateway Timeout", "AGENT_TIMEOUT",
			"the finance agent did not answer in time", extra)
	case errors.Is(err, agent.ErrAgentStatus):
		detail := "the finance agent answered with an error"
		if ae != nil && ae.Status > 0 {
			detail += " (HTTP " + strconv.Itoa(ae.Status) + ")"
		}
		problem.Write(w, r, http.StatusBadGateway, "agent/bad_status", "Bad Gateway", "AGENT_BAD_STATUS", detail, extra)
	case errors.Is(err, agent.ErrAgentBadResponse):
		problem.Write(w, r, http.StatusBadGateway, "agent/bad_response", "Bad Gateway", "AGENT_BAD_RESPONSE",
			"the finance agent sent an invalid response", extra)
	default:
		problem.Write(w, r, http.StatusBadGateway, "agent/unavailable", "Bad Gateway", "AGENT_UNAVAILABLE",
			"the finance agent is unreachable", extra)
	}
}

// queryLimit reads ?limit= clamped to [1, maxVal]; absent or invalid yields def.
func queryLimit(r *http.Request, def, maxVal int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxVal {
		return maxVal
	}
	return n
}
