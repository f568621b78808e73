// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_agent_requests_total",
		Help: "Requests sent to the agent service by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome=ok|unavailable|timeout|bad_status|bad_response

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fingate_agent_response_header_seconds",
		Help:    "Time until the agent service returned response headers",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// RecordAgentRequest records one upstream request outcome.
func RecordAgentRequest(operation, outcome string, headerLatency time.Duration) {
	upstreamRequestsTotal.WithLabelValues(operation, outcome).Inc()
	if outcome == "ok" && headerLatency > 0 {
		upstreamLatency.WithLabelValues(operation).Observe(headerLatency.Seconds())
	}
}
