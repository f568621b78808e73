// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // keys read by the last Load
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, empty for env-only configuration.
func (l *Loader) Path() string {
	return l.configPath
}

// Wrapper methods for mechanical tracking of consumed keys

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: defaults, file (strict YAML), environment, validation.
func (l *Loader) Load() (AppConfig, error) {
	l.ConsumedEnvKeys = make(map[string]struct{})
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFileInto(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	l.warnUnknownEnvKeys()

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile parses path over the defaults without environment overrides and
// without validation.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()
	err := NewLoader(path, "").loadFileInto(path, &cfg)
	return cfg, err
}

// loadFileInto decodes a YAML file over cfg with STRICT parsing: unknown
// fields and multiple documents are fatal.
func (l *Loader) loadFileInto(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies FINGATE_* overrides.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("FINGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.Environment = l.envString("FINGATE_ENVIRONMENT", cfg.Environment)

	s := &cfg.Server
	s.ListenAddr = l.envString("FINGATE_LISTEN_ADDR", s.ListenAddr)
	s.MetricsAddr = l.envString("FINGATE_METRICS_ADDR", s.MetricsAddr)
	s.TLSCert = l.envString("FINGATE_TLS_CERT", s.TLSCert)
	s.TLSKey = l.envString("FINGATE_TLS_KEY", s.TLSKey)
	s.ReadHeaderTimeout = l.envDuration("FINGATE_READ_HEADER_TIMEOUT", s.ReadHeaderTimeout)
	s.IdleTimeout = l.envDuration("FINGATE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = l.envDuration("FINGATE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = int64(l.envInt("FINGATE_MAX_BODY_BYTES", int(s.MaxBodyBytes)))
	s.AllowedOrigins = l.envList("FINGATE_ALLOWED_ORIGINS", s.AllowedOrigins)
	s.CORSCredentials = l.envBool("FINGATE_CORS_CREDENTIALS", s.CORSCredentials)
	s.CSRF = l.envBool("FINGATE_CSRF", s.CSRF)
	s.SecurityHeaders = l.envBool("FINGATE_SECURITY_HEADERS", s.SecurityHeaders)
	s.TrustedProxies = l.envList("FINGATE_TRUSTED_PROXIES", s.TrustedProxies)
	s.RateLimit = l.envInt("FINGATE_RATE_LIMIT", s.RateLimit)
	s.ChatRateLimit = l.envInt("FINGATE_CHAT_RATE_LIMIT", s.ChatRateLimit)
	s.RateLimitAllowIP = l.envList("FINGATE_RATE_LIMIT_WHITELIST", s.RateLimitAllowIP)

	a := &cfg.Agent
	a.BaseURL = l.envString("FINGATE_AGENT_URL", a.BaseURL)
	a.DialTimeout = l.envDuration("FINGATE_AGENT_DIAL_TIMEOUT", a.DialTimeout)
	a.HeaderTimeout = l.envDuration("FINGATE_AGENT_HEADER_TIMEOUT", a.HeaderTimeout)
	a.ProbeTimeout = l.envDuration("FINGATE_AGENT_PROBE_TIMEOUT", a.ProbeTimeout)

	st := &cfg.Stream
	st.DescriptionMaxWords = l.envInt("FINGATE_DESCRIPTION_MAX_WORDS", st.DescriptionMaxWords)
	st.MaxLineBytes = l.envInt("FINGATE_MAX_LINE_BYTES", st.MaxLineBytes)
	st.EmitFinish = l.envBool("FINGATE_EMIT_FINISH", st.EmitFinish)

	cfg.Logs.BufferSize = l.envInt("FINGATE_LOG_BUFFER_SIZE", cfg.Logs.BufferSize)
	cfg.Logs.Heartbeat = l.envDuration("FINGATE_LOG_HEARTBEAT", cfg.Logs.Heartbeat)

	j := &cfg.Journal
	j.Backend = l.envString("FINGATE_JOURNAL_BACKEND", j.Backend)
	j.Path = l.envString("FINGATE_JOURNAL_PATH", j.Path)
	j.MaxRuns = l.envInt("FINGATE_JOURNAL_MAX_RUNS", j.MaxRuns)
	j.Retention = l.envDuration("FINGATE_JOURNAL_RETENTION", j.Retention)
	j.QueueSize = l.envInt("FINGATE_JOURNAL_QUEUE_SIZE", j.QueueSize)
	j.PruneInterval = l.envDuration("FINGATE_JOURNAL_PRUNE_INTERVAL", j.PruneInterval)
	j.Redis.Addr = l.envString("FINGATE_REDIS_ADDR", j.Redis.Addr)
	j.Redis.Password = l.envString("FINGATE_REDIS_PASSWORD", j.Redis.Password)
	j.Redis.DB = l.envInt("FINGATE_REDIS_DB", j.Redis.DB)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("FINGATE_TRACING_ENABLED", t.Enabled)
	t.Exporter = l.envString("FINGATE_TRACING_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("FINGATE_TRACING_ENDPOINT", t.Endpoint)
	t.Insecure = l.envBool("FINGATE_TRACING_INSECURE", t.Insecure)
	t.SamplingRate = l.envFloat("FINGATE_TRACING_SAMPLING_RATE", t.SamplingRate)
}

// UnknownEnvKeys lists FINGATE_* variables in the environment that the last
// Load did not read. Usually typos.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) || key == EnvConfigPath {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (l *Loader) warnUnknownEnvKeys() {
	logger := envLogger()
	for _, key := range l.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("unknown environment variable ignored")
	}
}
