// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"sync"
	"time"
)

// ProbeChecker adapts a probe function. A failing critical probe is
// unhealthy, a failing optional one only degraded.
type ProbeChecker struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

// NewProbeChecker creates a checker around probe.
func NewProbeChecker(name string, critical bool, probe func(ctx context.Context) error) *ProbeChecker {
	return &ProbeChecker{name: name, critical: critical, probe: probe}
}

func (c *ProbeChecker) Name() string { return c.name }

func (c *ProbeChecker) Check(ctx context.Context) CheckResult {
	if c.probe == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	start := time.Now()
	if err := c.probe(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok in " + time.Since(start).Round(time.Millisecond).String()}
}

// RelayTracker remembers the outcome of the most recent chat relays.
type RelayTracker struct {
	mu          sync.Mutex
	lastAt      time.Time
	lastErr     string
	consecutive int
}

// Record notes one finished relay. err is nil for a clean relay.
func (t *RelayTracker) Record(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAt = at
	if err != nil {
		t.lastErr = err.Error()
		t.consecutive++
		return
	}
	t.lastErr = ""
	t.consecutive = 0
}

// Last returns the time, error text and consecutive failure count.
func (t *RelayTracker) Last() (time.Time, string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAt, t.lastErr, t.consecutive
}

// RelayChecker degrades when recent relays failed upstream. It never reports
// unhealthy: the agent probe decides readiness.
type RelayChecker struct {
	tracker   *RelayTracker
	threshold int
}

// NewRelayChecker degrades after threshold consecutive failures.
func NewRelayChecker(tracker *RelayTracker, threshold int) *RelayChecker {
	if threshold <= 0 {
		threshold = 3
	}
	return &RelayChecker{tracker: tracker, threshold: threshold}
}

func (c *RelayChecker) Name() string { return "chat_relay" }

func (c *RelayChecker) Check(context.Context) CheckResult {
	at, lastErr, failures := c.tracker.Last()
	switch {
	case at.IsZero():
		return CheckResult{Status: StatusHealthy, Message: "no relay yet"}
	case failures >= c.threshold:
		return CheckResult{Status: StatusDegraded, Error: lastErr, Message: "recent relays failed"}
	case lastErr != "":
		return CheckResult{Status: StatusHealthy, Error: lastErr, Message: "last relay failed"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "last relay ok"}
	}
}
