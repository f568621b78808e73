// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/fingate/internal/journal"
	xglog "github.com/ManuGH/fingate/internal/log"
)

const (
	defaultTimelineLimit = 50
	maxTimelineLimit     = 500
)

type timelineResponse struct {
	Items []journal.ToolRecord `json:"items"`
}

func (s *Server) journalStore(w http.ResponseWriter, r *http.Request) journal.Store {
	if s.journal == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "journal/disabled", "Service Unavailable", "JOURNAL_DISABLED", "run journal is not enabled")
		return nil
	}
	return s.journal.Store()
}

// handleTimeline lists recent tool calls, newest first.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	store := s.journalStore(w, r)
	if store == nil {
		return
	}
	items, err := store.RecentTools(r.Context(), queryLimit(r, defaultTimelineLimit, maxTimelineLimit))
	if err != nil {
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("timeline query failed")
		writeProblem(w, r, http.StatusInternalServerError, "journal/query_failed", "Internal Server Error", "JOURNAL_ERROR", "could not read the timeline")
		return
	}
	if items == nil {
		items = []journal.ToolRecord{}
	}
	writeJSON(w, http.StatusOK, timelineResponse{Items: items})
}

// handleRun returns one run with its tool calls.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	store := s.journalStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	run, err := store.Run(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeProblem(w, r, http.StatusNotFound, "journal/run_not_found", "Not Found", "RUN_NOT_FOUND", "no run with id "+id)
		return
	}
	if err != nil {
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Str(xglog.FieldRunID, id).Msg("run query failed")
		writeProblem(w, r, http.StatusInternalServerError, "journal/query_failed", "Internal Server Error", "JOURNAL_ERROR", "could not read the run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
