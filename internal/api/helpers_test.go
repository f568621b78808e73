// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fingate/internal/agent"
	"github.com/ManuGH/fingate/internal/config"
	"github.com/ManuGH/fingate/internal/health"
	"github.com/ManuGH/fingate/internal/journal"
)

type staticConfig struct {
	cfg config.AppConfig
}

func (s staticConfig) Get() config.AppConfig { return s.cfg }

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	cfg.Server.ChatRateLimit = 0
	cfg.Logs.Heartbeat = 50 * time.Millisecond
	return cfg
}

type testEnv struct {
	server  *Server
	handler http.Handler
	agent   *httptest.Server
	journal *journal.Journal
	relays  *health.RelayTracker
}

// newTestEnv starts a fake agent backed by agentHandler and a Server in
// front of it. Close runs via t.Cleanup.
func newTestEnv(t *testing.T, agentHandler http.HandlerFunc, mutate ...func(*config.AppConfig)) *testEnv {
	t.Helper()

	upstream := httptest.NewServer(agentHandler)
	t.Cleanup(upstream.Close)

	client, err := agent.New(agent.Options{BaseURL: upstream.URL, HeaderTimeout: 2 * time.Second})
	require.NoError(t, err)

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	j := journal.New(journal.NewMemoryStore(100), journal.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = j.Close(ctx)
	})

	relays := &health.RelayTracker{}
	srv, err := New(Deps{
		Agent:   client,
		Config:  staticConfig{cfg: cfg},
		Journal: j,
		Health:  health.NewManager("test"),
		Relays:  relays,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, handler: srv.Handler(), agent: upstream, journal: j, relays: relays}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// ndjson writes lines to w, flushing after each.
func ndjson(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	for _, l := range lines {
		_, _ = w.Write([]byte(l + "\n"))
		if f != nil {
			f.Flush()
		}
	}
}
