// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fingate/internal/log"
)

// StartupConfig is the subset of configuration checked before serving.
type StartupConfig struct {
	ListenAddr     string
	MetricsAddr    string
	TLSCert        string
	TLSKey         string
	JournalBackend string
	// JournalPath is the sqlite file or badger directory.
	JournalPath string
}

// PerformStartupChecks validates the environment before the servers start.
func PerformStartupChecks(_ context.Context, cfg StartupConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, addr := range []string{cfg.ListenAddr, cfg.MetricsAddr} {
		if err := checkListenAddr(addr); err != nil {
			return err
		}
	}

	if cfg.TLSCert != "" || cfg.TLSKey != "" {
		if cfg.TLSCert == "" || cfg.TLSKey == "" {
			return fmt.Errorf("TLS configuration requires both cert and key")
		}
		if err := checkFileReadable(cfg.TLSCert); err != nil {
			return fmt.Errorf("TLS cert: %w", err)
		}
		if err := checkFileReadable(cfg.TLSKey); err != nil {
			return fmt.Errorf("TLS key: %w", err)
		}
	}

	switch cfg.JournalBackend {
	case "sqlite":
		if err := checkWritableDir(logger, filepath.Dir(cfg.JournalPath)); err != nil {
			return fmt.Errorf("journal directory check failed: %w", err)
		}
	case "badger":
		if err := os.MkdirAll(cfg.JournalPath, 0o750); err != nil {
			return fmt.Errorf("journal directory check failed: %w", err)
		}
		if err := checkWritableDir(logger, cfg.JournalPath); err != nil {
			return fmt.Errorf("journal directory check failed: %w", err)
		}
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	logger.Debug().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
