// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/fingate/internal/audit"
	"github.com/ManuGH/fingate/internal/config"
	xglog "github.com/ManuGH/fingate/internal/log"
)

// App owns the long-lived runtime lifecycle (config watcher, reload wiring)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	audit        *audit.Logger
	reloadSignal os.Signal
	applyCh      chan config.AppConfig
}

// NewApp creates a new App orchestrator. It subscribes to cfgHolder right
// away, so reloads that land before Run are applied once Run starts.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder) *App {
	a := &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		audit:        audit.NewLogger(),
		reloadSignal: syscall.SIGHUP,
	}
	if cfgHolder != nil {
		a.applyCh = make(chan config.AppConfig, 1)
		cfgHolder.Subscribe(a.applyCh)
	}
	return a
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		// Watcher is best-effort: a broken watcher must not take the server down.
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-a.applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					old := a.cfgHolder.Get()
					err := a.cfgHolder.Reload(ctx)
					if err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
					a.audit.ConfigReload(nil, a.reloadSignal.String(), err, config.RestartRequired(old, a.cfgHolder.Get()))
				}
			}
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// apply pushes the hot-reloadable parts of a new config into the runtime.
// Request handlers read stream and log settings from the holder directly.
func (a *App) apply(cfg config.AppConfig) {
	if err := xglog.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring invalid log level")
		return
	}
	a.logger.Info().
		Str("event", "config.applied").
		Str("log_level", cfg.LogLevel).
		Msg("applied reloaded configuration")
}
