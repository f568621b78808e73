// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the HTTP surface the chat UI talks to.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fingate/internal/agent"
	"github.com/ManuGH/fingate/internal/audit"
	"github.com/ManuGH/fingate/internal/config"
	"github.com/ManuGH/fingate/internal/control/middleware"
	"github.com/ManuGH/fingate/internal/health"
	"github.com/ManuGH/fingate/internal/journal"
	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
)

// TracerName names the server spans.
const TracerName = "fingate-api"

// Agent is the upstream surface the handlers use.
type Agent interface {
	Query(ctx context.Context, q agent.QueryRequest) (io.ReadCloser, error)
	WorkspaceTree(ctx context.Context) (*agent.Response, error)
	WorkspaceFile(ctx context.Context, path string) (*agent.Response, error)
	LogStream(ctx context.Context) (io.ReadCloser, error)
}

// ConfigSource returns the live configuration.
type ConfigSource interface {
	Get() config.AppConfig
}

// Reloader reloads the configuration on demand.
type Reloader interface {
	ConfigSource
	Reload(ctx context.Context) error
}

// Deps are the collaborators of a Server. Journal, Health, Relays and
// Reloader are optional.
type Deps struct {
	Agent    Agent
	Config   ConfigSource
	Reloader Reloader
	Journal  *journal.Journal
	Health   *health.Manager
	Relays   *health.RelayTracker
	Audit    *audit.Logger
	Now      func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	agent    Agent
	config   ConfigSource
	reloader Reloader
	journal  *journal.Journal
	health   *health.Manager
	relays   *health.RelayTracker
	audit    *audit.Logger
	now      func() time.Time
	logger   zerolog.Logger

	handler http.Handler

	draining  chan struct{}
	drainOnce sync.Once
}

// New validates deps and builds the router. Server settings (CORS, rate
// limits, proxies) are read once here.
func New(deps Deps) (*Server, error) {
	if deps.Agent == nil {
		return nil, errors.New("api: agent is required")
	}
	if deps.Config == nil && deps.Reloader != nil {
		deps.Config = deps.Reloader
	}
	if deps.Config == nil {
		return nil, errors.New("api: config source is required")
	}
	s := &Server{
		agent:    deps.Agent,
		config:   deps.Config,
		reloader: deps.Reloader,
		journal:  deps.Journal,
		health:   deps.Health,
		relays:   deps.Relays,
		audit:    deps.Audit,
		now:      deps.Now,
		logger:   xglog.WithComponent("api"),
		draining: make(chan struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = audit.NewLogger()
	}
	h, err := s.routes(deps.Config.Get())
	if err != nil {
		return nil, err
	}
	s.handler = h
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(cfg config.AppConfig) (http.Handler, error) {
	proxies, err := middleware.ParseCIDRs(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("api: trusted proxies: %w", err)
	}
	whitelist, err := middleware.ParseCIDRs(cfg.Server.RateLimitAllowIP)
	if err != nil {
		return nil, fmt.Errorf("api: rate limit whitelist: %w", err)
	}

	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            len(cfg.Server.AllowedOrigins) > 0,
		AllowedOrigins:        cfg.Server.AllowedOrigins,
		CORSAllowCredentials:  cfg.Server.CORSCredentials,
		EnableCSRF:            cfg.Server.CSRF,
		EnableSecurityHeaders: cfg.Server.SecurityHeaders,
		TrustedProxies:        proxies,
		EnableMetrics:         true,
		TracingService:        TracerName,
		EnableLogging:         true,
		EnableRateLimit:       cfg.Server.RateLimit > 0,
		RateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.Server.RateLimit,
			WindowSize:   time.Minute,
			OnLimited:    func(r *http.Request) { s.audit.RateLimited(r, "api") },
		},
		RateLimitWhitelist: whitelist,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "system/not_found", "Not Found", "NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "system/method_not_allowed", "Method Not Allowed", "METHOD_NOT_ALLOWED", r.Method+" is not allowed on "+r.URL.Path)
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: cfg.Server.ChatRateLimit,
			WindowSize:   time.Minute,
			Whitelist:    whitelist,
			OnLimited: func(r *http.Request) {
				metrics.RecordChatRejected()
				s.audit.RateLimited(r, "chat")
			},
		})).Post("/chat", s.handleChat)

		r.Get("/workspace/tree", s.handleWorkspaceTree)
		r.Get("/workspace/file", s.handleWorkspaceFile)
		r.Get("/agent/logs/stream", s.handleAgentLogStream)

		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stream", s.handleLogStream)

		r.Get("/timeline", s.handleTimeline)
		r.Get("/runs/{id}", s.handleRun)

		r.Post("/config/reload", s.handleConfigReload)
	})

	return r, nil
}

// Drain ends open log streams. Chat relays are left to finish on their own.
// Safe to call more than once.
func (s *Server) Drain() {
	s.drainOnce.Do(func() { close(s.draining) })
}

// streamContext derives a request context that is also cancelled by Drain.
func (s *Server) streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		select {
		case <-s.draining:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
