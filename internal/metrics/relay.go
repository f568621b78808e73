// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	agentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_agent_events_total",
		Help: "Agent data events read from the upstream stream, by event name",
	}, []string{"event"})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_stream_frames_total",
		Help: "Frames written to chat clients, by frame kind",
	}, []string{"kind"}) // kind=text|data|error|finish|other

	textClassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_agent_text_total",
		Help: "Agent text events by classification",
	}, []string{"class"}) // class=description|content

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_tool_calls_total",
		Help: "Tool calls closed, by outcome and result card",
	}, []string{"outcome", "card"}) // outcome=success|error|orphaned

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fingate_tool_call_duration_seconds",
		Help:    "Time between tool start and its terminal event",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"card"})

	malformedLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_malformed_lines_total",
		Help: "Upstream NDJSON lines skipped, by reason",
	}, []string{"reason"}) // reason=invalid_json|too_long|encode_failed

	chatRelaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_chat_relays_total",
		Help: "Chat relays by result",
	}, []string{"result"}) // result=completed|canceled|stream_error|upstream_error|rejected

	chatRelayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fingate_chat_relay_duration_seconds",
		Help:    "Wall time of a chat relay from upstream response to stream end",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	chatRelaysInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fingate_chat_relays_in_flight",
		Help: "Chat relays currently streaming",
	})
)

var knownEvents = map[string]bool{
	"agent.text":        true,
	"agent.tool-start":  true,
	"agent.tool-result": true,
	"agent.tool-error":  true,
	"agent.completed":   true,
	"agent.log":         true,
	"agent.error":       true,
}

// ObserveAgentEvent counts one upstream data event. Unknown names collapse
// into "other" to keep label cardinality bounded.
func ObserveAgentEvent(name string) {
	if !knownEvents[name] {
		name = "other"
	}
	agentEventsTotal.WithLabelValues(name).Inc()
}

// ObserveFrame counts one frame written to a client.
func ObserveFrame(code byte) {
	kind := "other"
	switch code {
	case '0':
		kind = "text"
	case '2':
		kind = "data"
	case '3':
		kind = "error"
	case 'd':
		kind = "finish"
	}
	framesTotal.WithLabelValues(kind).Inc()
}

// ObserveTextClass counts one classified agent text.
func ObserveTextClass(class string) {
	textClassTotal.WithLabelValues(class).Inc()
}

// ObserveToolCall records a closed tool call. d is zero when no start was seen.
func ObserveToolCall(outcome, card string, d time.Duration) {
	toolCallsTotal.WithLabelValues(outcome, card).Inc()
	if d > 0 {
		toolCallDuration.WithLabelValues(card).Observe(d.Seconds())
	}
}

// IncMalformedLine counts one skipped upstream line.
func IncMalformedLine(reason string) {
	malformedLinesTotal.WithLabelValues(reason).Inc()
}

// ChatRelayStarted tracks an in-flight relay; call the returned func when it ends.
func ChatRelayStarted() func(result string) {
	start := time.Now()
	chatRelaysInFlight.Inc()
	return func(result string) {
		chatRelaysInFlight.Dec()
		chatRelaysTotal.WithLabelValues(result).Inc()
		chatRelayDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordChatRejected counts a chat request refused before streaming began.
func RecordChatRejected() {
	chatRelaysTotal.WithLabelValues("rejected").Inc()
}
