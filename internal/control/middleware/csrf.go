// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"net/url"

	"github.com/ManuGH/fingate/internal/control/http/problem"
	platformnet "github.com/ManuGH/fingate/internal/platform/net"
)

// CSRFProtection rejects state-changing requests (anything but GET, HEAD and
// OPTIONS) whose Origin or Referer is missing or untrusted.
//
// A request is trusted when its origin is in allowedOrigins (or "*" is
// configured), or when it matches the request's own host and no forwarding
// headers are present.
func CSRFProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := normalizeOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin == "" {
				writeCSRFProblem(w, r, "Missing origin or referer header")
				return
			}
			if !isOriginAllowed(origin, allowed, r) {
				writeCSRFProblem(w, r, "CSRF check failed: origin not trusted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeCSRFProblem(w http.ResponseWriter, r *http.Request, detail string) {
	problem.Write(w, r, http.StatusForbidden, "auth/csrf", "Forbidden", "CSRF_FORBIDDEN", detail, nil)
}

// requestOrigin returns the normalized Origin header, falling back to the
// origin part of Referer.
func requestOrigin(r *http.Request) string {
	if o, err := platformnet.NormalizeOrigin(r.Header.Get("Origin")); err == nil && o != "*" {
		return o
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	o, err := platformnet.NormalizeOrigin(u.Scheme + "://" + u.Host)
	if err != nil {
		return ""
	}
	return o
}

func isOriginAllowed(origin string, allowed map[string]bool, r *http.Request) bool {
	if allowed["*"] || allowed[origin] {
		return true
	}
	// Same-origin is only trusted when no proxy rewrote the request.
	if hasProxyHeaders(r) {
		return false
	}
	return origin == strictSameOrigin(r)
}

var proxyHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Forwarded-Server",
}

func hasProxyHeaders(r *http.Request) bool {
	for _, h := range proxyHeaders {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	return false
}

// strictSameOrigin reconstructs the expected origin from Host and the
// connection state, ignoring forwarding headers.
func strictSameOrigin(r *http.Request) string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	o, err := platformnet.NormalizeOrigin(scheme + "://" + r.Host)
	if err != nil {
		return ""
	}
	return o
}
