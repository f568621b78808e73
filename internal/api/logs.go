// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	xglog "github.com/ManuGH/fingate/internal/log"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 10000
	agentLogChunk   = 32 << 10
)

func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// handleLogs returns the newest gateway log entries, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultLogLimit, maxLogLimit)
	entries := xglog.GetRecentLogs()
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []xglog.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleLogStream streams gateway logs as Server-Sent Events: the buffered
// backlog first, then live entries, with comment heartbeats in between.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	live, unsubscribe := xglog.Subscribe()
	defer unsubscribe()
	backlog := xglog.GetRecentLogs()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	var last uint64
	for _, e := range backlog {
		if err := writeLogEvent(w, e); err != nil {
			return
		}
		last = e.Seq
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.config.Get().Logs.Heartbeat)
	defer heartbeat.Stop()

	ctx, cancel := s.streamContext(r)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
		case e := <-live:
			// entries captured between Subscribe and the snapshot arrive twice
			if e.Seq <= last {
				continue
			}
			if err := writeLogEvent(w, e); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeLogEvent(w io.Writer, e xglog.LogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	if _, err := io.WriteString(w, "event: log\ndata: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n\n")
	return err
}

// handleAgentLogStream passes the agent's own SSE log stream through.
func (s *Server) handleAgentLogStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.streamContext(r)
	defer cancel()

	body, err := s.agent.LogStream(ctx)
	if err != nil {
		s.logUpstream(r, err, "log stream")
		writeAgentError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	buf := make([]byte, agentLogChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if ferr := rc.Flush(); ferr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logUpstream(r, err, "log stream read")
			}
			return
		}
	}
}
