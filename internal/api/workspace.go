// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/fingate/internal/agent"
	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/validate"
)

func (s *Server) handleWorkspaceTree(w http.ResponseWriter, r *http.Request) {
	resp, err := s.agent.WorkspaceTree(r.Context())
	if err != nil {
		s.logUpstream(r, err, "workspace tree")
		writeAgentError(w, r, err)
		return
	}
	writePassthrough(w, resp)
}

func (s *Server) handleWorkspaceFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	v := validate.New()
	v.RelativePath("path", path)
	if err := v.Err(); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "workspace/invalid_path", "Bad Request", "INVALID_PATH", err.Error())
		return
	}

	resp, err := s.agent.WorkspaceFile(r.Context(), path)
	if err != nil {
		s.logUpstream(r, err, "workspace file")
		writeAgentError(w, r, err)
		return
	}
	writePassthrough(w, resp)
}

// writePassthrough relays an agent response with its status and body.
func writePassthrough(w http.ResponseWriter, resp *agent.Response) {
	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (s *Server) logUpstream(r *http.Request, err error, what string) {
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Warn().
		Err(err).
		Str("kind", agent.Kind(err)).
		Str(xglog.FieldPath, r.URL.Path).
		Msg(what + " request to agent failed")
}
