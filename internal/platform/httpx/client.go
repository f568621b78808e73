// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultStreamHeaderTimeout   = 30 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// NewClient returns a hardened HTTP client for short request/response calls
// such as health probes.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := min(timeout, defaultDialTimeout)
	responseHeaderTimeout := min(timeout, defaultResponseHeaderTimeout)

	return &http.Client{
		Timeout:   timeout,
		Transport: instrument(NewTransport(dialTimeout, responseHeaderTimeout)),
	}
}

// NewStreamingClient returns a client for long-lived response bodies. It has
// no overall timeout: the body may stream for minutes and is bounded by the
// request context instead. Dial and response-header waits stay bounded.
func NewStreamingClient(dialTimeout, headerTimeout time.Duration) *http.Client {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if headerTimeout <= 0 {
		headerTimeout = defaultStreamHeaderTimeout
	}
	return &http.Client{
		Transport: instrument(NewTransport(dialTimeout, headerTimeout)),
	}
}

// NewTransport builds the tuned transport shared by all clients.
func NewTransport(dialTimeout, responseHeaderTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		// Streamed NDJSON must reach the relay unbuffered by gzip.
		DisableCompression: true,
	}
}

// instrument wraps base so every outbound request gets a client span and
// propagates the trace context.
func instrument(base *http.Transport) http.RoundTripper {
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	)
}
