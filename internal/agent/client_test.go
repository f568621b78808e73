// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xglog "github.com/ManuGH/fingate/internal/log"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:       base,
		HeaderTimeout: 500 * time.Millisecond,
		ProbeTimeout:  500 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "ftp://agent"})
	assert.Error(t, err)

	c, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c, err = New(Options{BaseURL: "http://agent:5052/prefix/"})
	require.NoError(t, err)
	assert.Equal(t, "http://agent:5052/prefix", c.BaseURL())
}

func TestQuery_SendsPromptAndMessages(t *testing.T) {
	var got map[string]json.RawMessage
	var requestID string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		requestID = r.Header.Get("X-Request-ID")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"type":"data","event":"agent.text","text":"hi"}`+"\n")
	}))
	defer s.Close()

	c := newTestClient(t, s.URL)
	ctx := xglog.ContextWithRequestID(context.Background(), "req-123")
	body, err := c.Query(ctx, QueryRequest{
		Prompt:   "Value AAPL",
		Messages: json.RawMessage(`[{"role":"user","content":"Value AAPL"}]`),
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "agent.text")
	assert.JSONEq(t, `"Value AAPL"`, string(got["prompt"]))
	assert.JSONEq(t, `[{"role":"user","content":"Value AAPL"}]`, string(got["messages"]))
	assert.Equal(t, "req-123", requestID)
}

func TestQuery_NonSuccessStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded api_key=sk-live-123", http.StatusServiceUnavailable)
	}))
	defer s.Close()

	c := newTestClient(t, s.URL)
	_, err := c.Query(context.Background(), QueryRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrAgentStatus)

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, OpQuery, aerr.Operation)
	assert.Equal(t, http.StatusServiceUnavailable, aerr.Status)
	assert.Contains(t, aerr.Body, "overloaded")
	assert.NotContains(t, err.Error(), "sk-live-123")
	assert.Equal(t, "bad_status", Kind(err))
}

func TestQuery_Unreachable(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	base := s.URL
	s.Close()

	c := newTestClient(t, base)
	_, err := c.Query(context.Background(), QueryRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrAgentUnavailable)
	assert.Equal(t, "unavailable", Kind(err))
}

func TestQuery_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	c := newTestClient(t, s.URL)
	_, err := c.Query(context.Background(), QueryRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrAgentTimeout)
	assert.Equal(t, "timeout", Kind(err))
}

func TestQuery_CanceledContextKeepsCause(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(t, s.URL)
	_, err := c.Query(ctx, QueryRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWorkspacePassthrough(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workspace/tree":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"ok":true,"tree":[]}`)
		case "/workspace/file":
			if r.URL.Query().Get("path") != "data/market/AAPL prices.json" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"detail":"File not found"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"ok":true,"content":"{}"}`)
		}
	}))
	defer s.Close()
	c := newTestClient(t, s.URL)

	resp, err := c.WorkspaceTree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"ok":true,"tree":[]}`, string(resp.Body))

	resp, err = c.WorkspaceFile(context.Background(), "data/market/AAPL prices.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = c.WorkspaceFile(context.Background(), "missing.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.JSONEq(t, `{"detail":"File not found"}`, string(resp.Body))
}

func TestLogStreamAndHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logs/stream":
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "data: {\"message\":\"hello\"}\n\n")
		case "/health":
			if !healthy.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	}))
	defer s.Close()
	c := newTestClient(t, s.URL)

	body, err := c.LogStream(context.Background())
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "data: {\"message\":\"hello\"}\n\n", string(data))

	assert.NoError(t, c.Health(context.Background()))
	healthy.Store(false)
	assert.ErrorIs(t, c.Health(context.Background()), ErrAgentStatus)
}
