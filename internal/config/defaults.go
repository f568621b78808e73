// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:        ":8088",
			MetricsAddr:       "127.0.0.1:9098",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      4 << 20,
			AllowedOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			SecurityHeaders:   true,
			RateLimit:         600,
			ChatRateLimit:     20,
		},
		Agent: AgentConfig{
			BaseURL:       "http://127.0.0.1:5052",
			DialTimeout:   5 * time.Second,
			HeaderTimeout: 30 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Stream: StreamConfig{
			DescriptionMaxWords: 12,
			MaxLineBytes:        4 << 20,
			EmitFinish:          true,
		},
		Logs: LogsConfig{
			BufferSize: 1000,
			Heartbeat:  15 * time.Second,
		},
		Journal: JournalConfig{
			Backend:       "memory",
			MaxRuns:       200,
			Retention:     7 * 24 * time.Hour,
			QueueSize:     1024,
			PruneInterval: time.Hour,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}
