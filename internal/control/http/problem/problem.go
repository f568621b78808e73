// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package problem writes RFC 7807 problem responses.
package problem

import (
	"encoding/json"
	"net/http"

	controlhttp "github.com/ManuGH/fingate/internal/control/http"
	"github.com/ManuGH/fingate/internal/log"
)

// Write writes an RFC 7807 problem details response.
//
//   - type: canonical machine identifier, e.g. "chat/invalid_request".
//   - title: short human label, e.g. "Bad Request".
//   - code: stable machine-readable code, e.g. "INVALID_REQUEST".
//   - detail: explanation of this specific failure.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	instance := ""
	reqID := ""
	if r != nil {
		instance = r.URL.EscapedPath()
		reqID = log.RequestIDFromContext(r.Context())
	} else {
		log.L().Error().Str("type", problemType).Int(log.FieldStatus, status).Msg("problem.Write called with nil request")
	}
	if reqID == "" {
		reqID = w.Header().Get(controlhttp.HeaderRequestID)
	}

	res := map[string]any{
		"type":   problemType,
		"title":  title,
		"status": status,
		"code":   code,
	}
	if reqID != "" {
		res[controlhttp.JSONKeyRequestID] = reqID
		w.Header().Set(controlhttp.HeaderRequestID, reqID)
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", controlhttp.JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().
			Err(err).
			Str("type", problemType).
			Int(log.FieldStatus, status).
			Msg("failed to encode problem response")
	}
}
