// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders_Defaults(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders("", nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, DefaultCSP, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_ProxyAwareHSTS(t *testing.T) {
	trusted, err := ParseCIDRs([]string{"10.0.0.1"})
	require.NoError(t, err)
	h := SecurityHeaders("", trusted)(okHandler())

	hsts := func(r *http.Request) string {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Header().Get("Strict-Transport-Security")
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	assert.NotEmpty(t, hsts(direct), "direct TLS")

	fromProxy := httptest.NewRequest(http.MethodGet, "/", nil)
	fromProxy.RemoteAddr = "10.0.0.1:4444"
	fromProxy.Header.Set("X-Forwarded-Proto", "https")
	assert.NotEmpty(t, hsts(fromProxy), "trusted proxy")

	spoofed := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofed.RemoteAddr = "192.0.2.7:4444"
	spoofed.Header.Set("X-Forwarded-Proto", "https")
	assert.Empty(t, hsts(spoofed), "untrusted peer")
}

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs([]string{"192.168.0.0/16", " 10.0.0.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.True(t, IsIPAllowed(net.ParseIP("192.168.4.2"), nets))
	assert.True(t, IsIPAllowed(net.ParseIP("10.0.0.1"), nets))
	assert.False(t, IsIPAllowed(net.ParseIP("10.0.0.2"), nets))
	assert.True(t, IsIPAllowed(net.ParseIP("::1"), nets))
	assert.False(t, IsIPAllowed(nil, nets))

	_, err = ParseCIDRs([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseCIDRs([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}
