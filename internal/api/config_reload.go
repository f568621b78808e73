// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/fingate/internal/config"
	xglog "github.com/ManuGH/fingate/internal/log"
)

type reloadResponse struct {
	RestartRequired []string `json:"restart_required"`
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeProblem(w, r, http.StatusNotImplemented, "config/reload_unavailable", "Not Implemented", "RELOAD_UNAVAILABLE", "config reload not available")
		return
	}

	oldCfg := s.reloader.Get()
	if err := s.reloader.Reload(r.Context()); err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "config")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("config reload failed")
		s.audit.ConfigReload(r, "", err, nil)
		writeProblem(w, r, http.StatusBadRequest, "config/reload_failed", "Bad Request", "INVALID_CONFIG", err.Error())
		return
	}

	sections := config.RestartRequired(oldCfg, s.reloader.Get())
	if sections == nil {
		sections = []string{}
	}
	s.audit.ConfigReload(r, "", nil, sections)
	writeJSON(w, http.StatusOK, reloadResponse{RestartRequired: sections})
}
