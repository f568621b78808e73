// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/fingate/internal/journal"
	"github.com/ManuGH/fingate/internal/validate"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string // empty means valid
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "bad log level", mutate: func(c *AppConfig) { c.LogLevel = "loud" }, field: "logLevel"},
		{name: "bad listen addr", mutate: func(c *AppConfig) { c.Server.ListenAddr = "nope" }, field: "server.listenAddr"},
		{name: "tls half configured", mutate: func(c *AppConfig) { c.Server.TLSCert = "cert.pem" }, field: "server.tlsCert"},
		{name: "agent url with credentials", mutate: func(c *AppConfig) { c.Agent.BaseURL = "http://u:p@agent:5052" }, field: "agent.baseUrl"},
		{name: "words out of range", mutate: func(c *AppConfig) { c.Stream.DescriptionMaxWords = 0 }, field: "stream.descriptionMaxWords"},
		{name: "line limit too small", mutate: func(c *AppConfig) { c.Stream.MaxLineBytes = 10 }, field: "stream.maxLineBytes"},
		{name: "unknown journal backend", mutate: func(c *AppConfig) { c.Journal.Backend = "mongo" }, field: "journal.backend"},
		{name: "sqlite needs path", mutate: func(c *AppConfig) { c.Journal.Backend = journal.BackendSQLite }, field: "journal.path"},
		{name: "redis needs addr", mutate: func(c *AppConfig) { c.Journal.Backend = journal.BackendRedis }, field: "journal.redis.addr"},
		{name: "sqlite with path", mutate: func(c *AppConfig) {
			c.Journal.Backend = journal.BackendSQLite
			c.Journal.Path = "/var/lib/fingate/journal.db"
		}},
		{name: "sampling above one", mutate: func(c *AppConfig) { c.Telemetry.SamplingRate = 1.5 }, field: "telemetry.samplingRate"},
		{name: "bad exporter when enabled", mutate: func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, field: "telemetry.exporter"},
		{name: "wildcard with credentials", mutate: func(c *AppConfig) {
			c.Server.AllowedOrigins = []string{"*"}
			c.Server.CORSCredentials = true
		}, field: "server.corsCredentials"},
		{name: "negative rate limit", mutate: func(c *AppConfig) { c.Server.RateLimit = -1 }, field: "server.rateLimit"},
		{name: "short heartbeat", mutate: func(c *AppConfig) { c.Logs.Heartbeat = 10 * time.Millisecond }, field: "logs.heartbeat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			var verr validate.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, e := range verr.Errors() {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for %s, got %v", tt.field, err)
			}
		})
	}
}
