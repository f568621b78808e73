// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package agent is the HTTP client for the finance agent service. The agent
// answers a query with an NDJSON event stream and exposes its workspace and
// log stream for the UI.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
	"github.com/ManuGH/fingate/internal/platform/httpx"
	platformnet "github.com/ManuGH/fingate/internal/platform/net"
)

// Operation names used in errors, logs and metrics.
const (
	OpQuery         = "query"
	OpWorkspaceTree = "workspace_tree"
	OpWorkspaceFile = "workspace_file"
	OpLogStream     = "log_stream"
	OpHealth        = "health"
)

const (
	// DefaultBaseURL is where the agent service listens by default.
	DefaultBaseURL = "http://127.0.0.1:5052"

	// MaxPassthroughBytes bounds buffered workspace responses. The agent
	// refuses files over 10MB, so this leaves room for the JSON envelope.
	MaxPassthroughBytes = 16 << 20
)

// Options configure a Client.
type Options struct {
	BaseURL       string
	DialTimeout   time.Duration
	HeaderTimeout time.Duration
	ProbeTimeout  time.Duration
	Logger        zerolog.Logger

	// StreamClient and ProbeClient override the built-in clients.
	StreamClient *http.Client
	ProbeClient  *http.Client
}

// Client talks to one agent service.
type Client struct {
	base   string
	stream *http.Client
	probe  *http.Client
	logger zerolog.Logger
}

// New validates the base URL and builds the HTTP clients.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, ok := platformnet.ParseDirectHTTPURL(raw)
	if !ok {
		return nil, fmt.Errorf("agent: invalid base URL %q", platformnet.SanitizeURL(raw))
	}
	u.RawQuery = ""

	c := &Client{
		base:   strings.TrimRight(u.String(), "/"),
		stream: opts.StreamClient,
		probe:  opts.ProbeClient,
		logger: opts.Logger.With().Str(xglog.FieldComponent, "agent").Logger(),
	}
	if c.stream == nil {
		c.stream = httpx.NewStreamingClient(opts.DialTimeout, opts.HeaderTimeout)
	}
	if c.probe == nil {
		c.probe = httpx.NewClient(opts.ProbeTimeout)
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// QueryRequest is the body of POST /query. Messages is the chat history as
// received from the UI and is forwarded untouched.
type QueryRequest struct {
	Prompt   string          `json:"prompt"`
	Messages json.RawMessage `json:"messages"`
}

// Query starts an agent run. On success the caller owns the returned NDJSON
// body and must close it. The body lives as long as ctx.
func (c *Client) Query(ctx context.Context, q QueryRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("agent: encode query: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/query", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.do(c.stream, req, OpQuery)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Response is a buffered pass-through response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// WorkspaceTree fetches the agent's workspace tree. Any HTTP status is
// returned as is; only transport failures are errors.
func (c *Client) WorkspaceTree(ctx context.Context) (*Response, error) {
	return c.passthrough(ctx, OpWorkspaceTree, "/workspace/tree", nil)
}

// WorkspaceFile fetches one workspace file by its relative path.
func (c *Client) WorkspaceFile(ctx context.Context, path string) (*Response, error) {
	return c.passthrough(ctx, OpWorkspaceFile, "/workspace/file", url.Values{"path": {path}})
}

// LogStream opens the agent's Server-Sent Events log stream. The caller
// must close the body.
func (c *Client) LogStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/logs/stream", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(c.stream, req, OpLogStream)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(c.probe, req, OpHealth)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.Body.Close()
}

func (c *Client) passthrough(ctx context.Context, op, path string, query url.Values) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.stream.Do(req)
	if err != nil {
		werr := wrapError(op, err, 0, nil)
		c.record(op, werr, 0)
		return nil, werr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPassthroughBytes+1))
	if err != nil {
		werr := wrapError(op, err, 0, nil)
		c.record(op, werr, 0)
		return nil, werr
	}
	if len(body) > MaxPassthroughBytes {
		werr := &Error{Sentinel: ErrAgentBadResponse, Operation: op, Status: resp.StatusCode,
			Err: fmt.Errorf("response exceeds %d bytes", MaxPassthroughBytes)}
		c.record(op, werr, 0)
		return nil, werr
	}
	c.record(op, nil, time.Since(start))

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("agent: build %s request: %w", path, err)
	}
	if id := xglog.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return req, nil
}

// do sends req and turns transport failures and non-2xx answers into
// *Error. On success the response body is left open.
func (c *Client) do(client *http.Client, req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		werr := wrapError(op, err, 0, nil)
		c.record(op, werr, 0)
		c.logger.Warn().Err(err).
			Str(xglog.FieldBaseURL, platformnet.SanitizeURL(c.base)).
			Str("operation", op).
			Msg("agent request failed")
		return nil, werr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes*2))
		_ = resp.Body.Close()
		werr := wrapError(op, nil, resp.StatusCode, body)
		c.record(op, werr, 0)
		c.logger.Warn().
			Int(xglog.FieldStatus, resp.StatusCode).
			Str("operation", op).
			Msg("agent answered with non-success status")
		return nil, werr
	}
	c.record(op, nil, time.Since(start))
	return resp, nil
}

func (c *Client) record(op string, err error, latency time.Duration) {
	metrics.RecordAgentRequest(op, Kind(err), latency)
}
