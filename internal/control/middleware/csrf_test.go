// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFProtection(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		method  string
		origin  string
		referer string
		proxied bool
		want    int
	}{
		{name: "safe method without origin", method: http.MethodGet, want: http.StatusOK},
		{name: "post without origin", method: http.MethodPost, want: http.StatusForbidden},
		{name: "same origin", method: http.MethodPost, origin: "http://gateway.local", want: http.StatusOK},
		{name: "same origin default port", method: http.MethodPost, origin: "http://gateway.local:80", want: http.StatusOK},
		{name: "same origin via referer", method: http.MethodPost, referer: "http://gateway.local/chat?x=1", want: http.StatusOK},
		{name: "same origin behind untrusted proxy", method: http.MethodPost, origin: "http://gateway.local", proxied: true, want: http.StatusForbidden},
		{name: "foreign origin", method: http.MethodPost, origin: "http://evil.example", want: http.StatusForbidden},
		{name: "allow-listed origin", allowed: []string{"http://localhost:3000"}, method: http.MethodPost, origin: "http://localhost:3000", want: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodPost, origin: "http://anything.example", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CSRFProtection(tt.allowed)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/chat", nil)
			req.Host = "gateway.local"
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			if tt.proxied {
				req.Header.Set("X-Forwarded-Host", "gateway.local")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCSRFProtection_ProblemBody(t *testing.T) {
	h := CSRFProtection(nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CSRF_FORBIDDEN", body["code"])
}
