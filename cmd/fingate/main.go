// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/fingate/internal/app/bootstrap"
	xglog "github.com/ManuGH/fingate/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML); defaults to $FINGATE_CONFIG")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.WireServices(ctx, version, commit, buildDate, *configPath)
	if err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Fatal().
			Err(err).
			Str("event", "startup.failed").
			Msg("failed to start fingate")
	}

	if err := container.Run(ctx); err != nil {
		container.Logger.Error().
			Err(err).
			Str("event", "daemon.exit").
			Msg("fingate stopped with error")
		stop()
		os.Exit(1)
	}
	container.Logger.Info().Str("event", "daemon.exit").Msg("fingate stopped")
}
