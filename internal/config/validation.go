// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/fingate/internal/journal"
	"github.com/ManuGH/fingate/internal/validate"
)

// Validate checks cfg and returns a validate.ValidationError listing every
// offending field.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}

	s := cfg.Server
	v.ListenAddr("server.listenAddr", s.ListenAddr)
	if s.MetricsAddr != "" {
		v.ListenAddr("server.metricsAddr", s.MetricsAddr)
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		v.AddError("server.tlsCert", "tlsCert and tlsKey must be set together", s.TLSCert)
	}
	v.DurationRange("server.readHeaderTimeout", s.ReadHeaderTimeout, time.Second, 5*time.Minute)
	v.DurationRange("server.idleTimeout", s.IdleTimeout, time.Second, time.Hour)
	v.DurationRange("server.shutdownTimeout", s.ShutdownTimeout, time.Second, 5*time.Minute)
	if s.MaxBodyBytes < 1024 || s.MaxBodyBytes > 64<<20 {
		v.AddError("server.maxBodyBytes", "must be between 1024 and 67108864", s.MaxBodyBytes)
	}
	v.Origins("server.allowedOrigins", s.AllowedOrigins)
	v.CIDRList("server.trustedProxies", s.TrustedProxies)
	v.CIDRList("server.rateLimitWhitelist", s.RateLimitAllowIP)
	v.NonNegative("server.rateLimit", s.RateLimit)
	v.NonNegative("server.chatRateLimit", s.ChatRateLimit)
	if s.CORSCredentials {
		for _, o := range s.AllowedOrigins {
			if o == "*" {
				v.AddError("server.corsCredentials", "credentials cannot be combined with wildcard origin", o)
			}
		}
	}

	a := cfg.Agent
	v.HTTPURL("agent.baseUrl", a.BaseURL)
	v.DurationRange("agent.dialTimeout", a.DialTimeout, 100*time.Millisecond, time.Minute)
	v.DurationRange("agent.headerTimeout", a.HeaderTimeout, time.Second, 10*time.Minute)
	v.DurationRange("agent.probeTimeout", a.ProbeTimeout, 100*time.Millisecond, time.Minute)

	st := cfg.Stream
	v.Range("stream.descriptionMaxWords", st.DescriptionMaxWords, 1, 200)
	v.Range("stream.maxLineBytes", st.MaxLineBytes, 4096, 64<<20)

	v.Range("logs.bufferSize", cfg.Logs.BufferSize, 1, 100000)
	v.DurationRange("logs.heartbeat", cfg.Logs.Heartbeat, time.Second, 5*time.Minute)

	j := cfg.Journal
	v.OneOf("journal.backend", j.Backend, []string{journal.BackendMemory, journal.BackendSQLite, journal.BackendBadger, journal.BackendRedis})
	switch j.Backend {
	case journal.BackendSQLite, journal.BackendBadger:
		v.NotEmpty("journal.path", j.Path)
	case journal.BackendRedis:
		v.NotEmpty("journal.redis.addr", j.Redis.Addr)
		v.Range("journal.redis.db", j.Redis.DB, 0, 15)
	}
	v.Positive("journal.maxRuns", j.MaxRuns)
	v.DurationRange("journal.retention", j.Retention, time.Minute, 365*24*time.Hour)
	v.Positive("journal.queueSize", j.QueueSize)
	v.DurationRange("journal.pruneInterval", j.PruneInterval, time.Minute, 24*time.Hour)

	t := cfg.Telemetry
	if t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", t.SamplingRate, 0, 1)

	return v.Err()
}
