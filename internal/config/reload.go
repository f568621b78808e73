// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/fingate/internal/log"
	"github.com/ManuGH/fingate/internal/metrics"
)

// DefaultDebounce collapses bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
// Readers call Get on every use so reloaded values apply to the next request.
type Holder struct {
	current  atomic.Pointer[AppConfig]
	loader   *Loader
	logger   zerolog.Logger
	debounce time.Duration

	reloadMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder creates a holder seeded with an already validated config.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	h := &Holder{
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: DefaultDebounce,
	}
	h.current.Store(&initial)
	return h
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	return *h.current.Load()
}

// Reload loads and validates the configuration again. An invalid
// configuration is rejected and the old one stays active.
func (h *Holder) Reload(_ context.Context) error {
	if h.loader == nil {
		return errors.New("config: reload without loader")
	}
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("new configuration rejected, keeping current")
		metrics.RecordConfigReload("rejected")
		return fmt.Errorf("reload config: %w", err)
	}

	old := h.current.Swap(&newCfg)
	h.logChanges(*old, newCfg)
	h.notifyListeners(newCfg)
	metrics.RecordConfigReload("success")

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Subscribe registers a channel that receives every successfully reloaded
// config. Sends never block; a full channel misses the update.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// Watch reloads the config whenever its file changes until ctx is done.
// The parent directory is watched so atomic rename replacements are seen.
// Without a config file Watch returns nil immediately.
func (h *Holder) Watch(ctx context.Context) error {
	if h.loader == nil || h.loader.Path() == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	path, err := filepath.Abs(h.loader.Path())
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching config file for changes")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str("event", "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(h.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().
					Err(err).
					Str("event", "config.auto_reload_failed").
					Msg("automatic config reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Hot-reloadable sections apply to the next request. Everything else is
// bound at startup and needs a restart.
func (h *Holder) logChanges(old, newCfg AppConfig) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: logLevel")
	}
	if old.Stream != newCfg.Stream {
		h.logger.Info().
			Interface("old", old.Stream).
			Interface("new", newCfg.Stream).
			Msg("config changed: stream")
	}
	if old.Logs.Heartbeat != newCfg.Logs.Heartbeat {
		h.logger.Info().
			Dur("old", old.Logs.Heartbeat).
			Dur("new", newCfg.Logs.Heartbeat).
			Msg("config changed: logs.heartbeat")
	}

	for _, section := range RestartRequired(old, newCfg) {
		h.logger.Warn().
			Str("event", "config.restart_required").
			Str("section", section).
			Msg("config change takes effect after restart")
	}
}

// RestartRequired names the changed sections that are not hot-reloadable.
func RestartRequired(old, newCfg AppConfig) []string {
	var out []string
	if !reflect.DeepEqual(old.Server, newCfg.Server) {
		out = append(out, "server")
	}
	if old.Agent != newCfg.Agent {
		out = append(out, "agent")
	}
	if old.Logs.BufferSize != newCfg.Logs.BufferSize {
		out = append(out, "logs.bufferSize")
	}
	if old.Journal != newCfg.Journal {
		out = append(out, "journal")
	}
	if old.Telemetry != newCfg.Telemetry {
		out = append(out, "telemetry")
	}
	if old.Environment != newCfg.Environment {
		out = append(out, "environment")
	}
	return out
}
