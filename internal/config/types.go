// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads, validates and hot-reloads the gateway configuration.
// Precedence is environment (FINGATE_*) over YAML file over defaults.
package config

import "time"

// AppConfig is the effective gateway configuration.
type AppConfig struct {
	// Version is the binary version, never read from file.
	Version string `yaml:"-"`

	LogLevel string `yaml:"logLevel"`
	// Environment tags traces and logs, e.g. "production".
	Environment string `yaml:"environment,omitempty"`

	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Stream    StreamConfig    `yaml:"stream"`
	Logs      LogsConfig      `yaml:"logs"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listeners and ingress middleware.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	MetricsAddr       string        `yaml:"metricsAddr,omitempty"`
	TLSCert           string        `yaml:"tlsCert,omitempty"`
	TLSKey            string        `yaml:"tlsKey,omitempty"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`

	AllowedOrigins   []string `yaml:"allowedOrigins,omitempty"`
	CORSCredentials  bool     `yaml:"corsCredentials"`
	CSRF             bool     `yaml:"csrf"`
	SecurityHeaders  bool     `yaml:"securityHeaders"`
	TrustedProxies   []string `yaml:"trustedProxies,omitempty"`
	RateLimit        int      `yaml:"rateLimit"`     // requests per minute per IP, 0 disables
	ChatRateLimit    int      `yaml:"chatRateLimit"` // chat relays per minute per IP, 0 disables
	RateLimitAllowIP []string `yaml:"rateLimitWhitelist,omitempty"`
}

// AgentConfig locates the finance agent service.
type AgentConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	HeaderTimeout time.Duration `yaml:"headerTimeout"`
	ProbeTimeout  time.Duration `yaml:"probeTimeout"`
}

// StreamConfig tunes the NDJSON to data stream translation. Hot-reloadable.
type StreamConfig struct {
	DescriptionMaxWords int  `yaml:"descriptionMaxWords"`
	MaxLineBytes        int  `yaml:"maxLineBytes"`
	EmitFinish          bool `yaml:"emitFinish"`
}

// LogsConfig configures the in-process log buffer and its live stream.
type LogsConfig struct {
	BufferSize int           `yaml:"bufferSize"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
}

// JournalConfig selects the run journal backend.
type JournalConfig struct {
	Backend       string        `yaml:"backend"`
	Path          string        `yaml:"path,omitempty"`
	MaxRuns       int           `yaml:"maxRuns"`
	Retention     time.Duration `yaml:"retention"`
	QueueSize     int           `yaml:"queueSize"`
	PruneInterval time.Duration `yaml:"pruneInterval"`
	Redis         RedisConfig   `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis journal backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
}
