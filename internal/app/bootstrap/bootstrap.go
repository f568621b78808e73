// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bootstrap is the production composition root.
package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fingate/internal/agent"
	"github.com/ManuGH/fingate/internal/api"
	"github.com/ManuGH/fingate/internal/config"
	"github.com/ManuGH/fingate/internal/daemon"
	"github.com/ManuGH/fingate/internal/health"
	"github.com/ManuGH/fingate/internal/journal"
	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
	"github.com/ManuGH/fingate/internal/telemetry"
)

// ServiceName is attached to logs and traces.
const ServiceName = "fingate"

// relayFailureThreshold degrades health after this many failed relays in a row.
const relayFailureThreshold = 3

// Container is the production composition root output.
type Container struct {
	Config       config.AppConfig
	ConfigHolder *config.Holder
	Logger       zerolog.Logger
	Server       *api.Server
	Manager      daemon.Manager
	App          *daemon.App

	Journal   *journal.Journal
	Telemetry *telemetry.Provider

	closeOnce sync.Once
}

// WireServices builds the production dependency graph and returns a runnable container.
func WireServices(ctx context.Context, version, commit, buildDate, explicitConfigPath string) (*Container, error) {
	if ctx == nil {
		return nil, fmt.Errorf("wire services context is nil")
	}

	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: ServiceName,
		Version: version,
	})
	logger := xglog.WithComponent("bootstrap")

	configPath, explicitMode, err := resolveConfigPath(strings.TrimSpace(explicitConfigPath))
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	xglog.SetRecentCapacity(cfg.Logs.BufferSize)
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: ServiceName,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("bootstrap")

	switch {
	case configPath == "":
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	case explicitMode:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str(xglog.FieldPath, configPath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(env)").
			Str(xglog.FieldPath, configPath).
			Msg("loaded configuration from file")
	}

	if configBytes, marshalErr := json.Marshal(cfg); marshalErr == nil {
		hash := sha256.Sum256(configBytes)
		logger.Info().
			Str("event", "config.snapshot").
			Str("sha256", fmt.Sprintf("%x", hash)).
			Interface("config", config.MaskSecrets(cfg)).
			Msg("configuration snapshot fingerprint")
	}

	if err := health.PerformStartupChecks(ctx, health.StartupConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		MetricsAddr:    cfg.Server.MetricsAddr,
		TLSCert:        cfg.Server.TLSCert,
		TLSKey:         cfg.Server.TLSKey,
		JournalBackend: cfg.Journal.Backend,
		JournalPath:    cfg.Journal.Path,
	}); err != nil {
		return nil, fmt.Errorf("startup checks failed: %w", err)
	}

	metrics.SetBuildInfo(version, commit, buildDate)
	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting fingate")
	logger.Info().Msgf("→ Agent: %s", config.MaskURL(cfg.Agent.BaseURL))
	logger.Info().Msgf("→ Journal: %s", cfg.Journal.Backend)
	if cfg.Server.TLSCert != "" {
		logger.Info().Msgf("→ TLS: enabled (cert: %s, key: %s)", cfg.Server.TLSCert, cfg.Server.TLSKey)
	}

	c := &Container{Config: cfg, Logger: logger}
	// Undo partial wiring if a later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = c.close(context.WithoutCancel(ctx))
		}
	}()

	c.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	agentClient, err := agent.New(agent.Options{
		BaseURL:       cfg.Agent.BaseURL,
		DialTimeout:   cfg.Agent.DialTimeout,
		HeaderTimeout: cfg.Agent.HeaderTimeout,
		ProbeTimeout:  cfg.Agent.ProbeTimeout,
		Logger:        xglog.WithComponent("agent"),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize agent client: %w", err)
	}

	store, err := journal.Open(journal.Config{
		Backend:       cfg.Journal.Backend,
		Path:          cfg.Journal.Path,
		MaxRuns:       cfg.Journal.MaxRuns,
		Retention:     cfg.Journal.Retention,
		RedisAddr:     cfg.Journal.Redis.Addr,
		RedisPassword: cfg.Journal.Redis.Password,
		RedisDB:       cfg.Journal.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize journal: %w", err)
	}
	c.Journal = journal.New(store, journal.Options{
		QueueSize:     cfg.Journal.QueueSize,
		Retention:     cfg.Journal.Retention,
		PruneInterval: cfg.Journal.PruneInterval,
		Logger:        xglog.Base(),
	})

	relays := &health.RelayTracker{}
	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewProbeChecker("agent", true, agentClient.Health))
	hm.RegisterChecker(health.NewProbeChecker("journal", false, c.Journal.Probe))
	hm.RegisterChecker(health.NewRelayChecker(relays, relayFailureThreshold))

	c.ConfigHolder = config.NewHolder(cfg, loader)

	c.Server, err = api.New(api.Deps{
		Agent:    agentClient,
		Reloader: c.ConfigHolder,
		Journal:  c.Journal,
		Health:   hm,
		Relays:   relays,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize api server: %w", err)
	}

	c.Manager, err = daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:         logger,
		APIHandler:     c.Server.Handler(),
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    strings.TrimSpace(cfg.Server.MetricsAddr),
		TLSCert:        cfg.Server.TLSCert,
		TLSKey:         cfg.Server.TLSKey,
		OnShutdown:     []func(){c.Server.Drain},
	})
	if err != nil {
		return nil, fmt.Errorf("create daemon manager: %w", err)
	}

	// LIFO: the journal drains before spans are flushed.
	c.Manager.RegisterShutdownHook("telemetry", c.Telemetry.Shutdown)
	c.Manager.RegisterShutdownHook("journal", c.Journal.Close)

	c.App = daemon.NewApp(logger, c.Manager, c.ConfigHolder)

	ok = true
	return c, nil
}

// Run starts the daemon app loop. Shutdown hooks release the journal and
// tracer once the servers have stopped.
func (c *Container) Run(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("run context is nil")
	}
	if c == nil || c.App == nil {
		return fmt.Errorf("container is not fully initialized")
	}
	return c.App.Run(ctx)
}

// close releases what WireServices opened when wiring fails midway.
func (c *Container) close(ctx context.Context) error {
	var errs []error
	c.closeOnce.Do(func() {
		if c.Journal != nil {
			errs = append(errs, c.Journal.Close(ctx))
		}
		if c.Telemetry != nil {
			errs = append(errs, c.Telemetry.Shutdown(ctx))
		}
	})
	return errors.Join(errs...)
}

// resolveConfigPath picks the --config flag, then FINGATE_CONFIG. Neither
// means env and defaults only.
func resolveConfigPath(explicit string) (path string, explicitMode bool, err error) {
	explicitMode = explicit != ""
	if !explicitMode {
		explicit = strings.TrimSpace(config.ParseString(config.EnvConfigPath, ""))
		if explicit == "" {
			return "", false, nil
		}
	}

	absPath, err := filepath.Abs(explicit)
	if err != nil {
		return "", explicitMode, fmt.Errorf("resolve absolute path for config %q: %w", explicit, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", explicitMode, fmt.Errorf("config file not found %q: %w", absPath, err)
	}
	if info.IsDir() {
		return "", explicitMode, fmt.Errorf("config path %q is a directory", absPath)
	}
	return absPath, explicitMode, nil
}
