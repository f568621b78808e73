// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"strings"

	controlhttp "github.com/ManuGH/fingate/internal/control/http"
	platformnet "github.com/ManuGH/fingate/internal/platform/net"
)

const (
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsAllowHeaders  = "Content-Type, X-Request-ID, Authorization"
	corsExposeHeaders = "Retry-After, X-Request-ID, " + controlhttp.HeaderDataStream + ", " + controlhttp.HeaderRunID
)

// CORS returns a middleware that sets Cross-Origin Resource Sharing headers
// for origins in allowedOrigins. "*" reflects any origin.
func CORS(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	allowed := normalizeOrigins(allowedOrigins)
	allowAll := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin := r.Header.Get("Origin"); origin != "" {
				normalized, err := platformnet.NormalizeOrigin(origin)
				if err == nil && (allowAll || allowed[normalized]) {
					h.Set("Access-Control-Allow-Origin", origin)
					if allowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", "600")

			// Vary: Origin always, the answer depends on it.
			if vary := h.Get("Vary"); vary == "" {
				h.Set("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
			} else if !strings.Contains(vary, "Origin") {
				h.Set("Vary", vary+", Origin")
			}

			if r.Method == http.MethodOptions {
				h.Set("Allow", corsAllowMethods)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigins(origins []string) map[string]bool {
	out := make(map[string]bool, len(origins))
	for _, o := range origins {
		if n, err := platformnet.NormalizeOrigin(o); err == nil {
			out[n] = true
		}
	}
	return out
}
