// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fingate/internal/config"
)

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Agent: nil, Config: staticConfig{cfg: testConfig()}})
	assert.Error(t, err)
}

func TestNew_RejectsBadProxyList(t *testing.T) {
	env := newTestEnv(t, func(http.ResponseWriter, *http.Request) {})
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-a-cidr"}
	_, err := New(Deps{Agent: env.server.agent, Config: staticConfig{cfg: cfg}})
	assert.Error(t, err)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	env := newTestEnv(t, func(http.ResponseWriter, *http.Request) {})

	rec := env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, func(http.ResponseWriter, *http.Request) {})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChatRateLimit(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		ndjson(w, `{"type":"data","event":"agent.completed"}`)
	}, func(c *config.AppConfig) { c.Server.ChatRateLimit = 1 })

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat", chatBody).Code)
	rec := env.do(t, http.MethodPost, "/api/chat", chatBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not affected by the chat limiter
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/timeline", "").Code)
}

type fakeReloader struct {
	cur  config.AppConfig
	next config.AppConfig
	err  error
}

func (f *fakeReloader) Get() config.AppConfig { return f.cur }

func (f *fakeReloader) Reload(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.cur = f.next
	return nil
}

func TestConfigReload(t *testing.T) {
	env := newTestEnv(t, func(http.ResponseWriter, *http.Request) {})

	rec := env.do(t, http.MethodPost, "/api/config/reload", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	cur := testConfig()
	next := cur
	next.Agent.BaseURL = "http://elsewhere:5052"
	next.Stream.DescriptionMaxWords = 5
	reloader := &fakeReloader{cur: cur, next: next}

	srv, err := New(Deps{Agent: env.server.agent, Reloader: reloader})
	require.NoError(t, err)
	env.handler = srv.Handler()

	rec = env.do(t, http.MethodPost, "/api/config/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp reloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"agent"}, resp.RestartRequired)

	reloader.err = errors.New("validation failed for stream.maxLineBytes")
	rec = env.do(t, http.MethodPost, "/api/config/reload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
