// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	xglog "github.com/ManuGH/fingate/internal/log"
)

// logBufferCollector exposes the recent-log ring buffer counters, which live
// in the log package to keep it free of a metrics dependency.
type logBufferCollector struct {
	captured *prometheus.Desc
	dropped  *prometheus.Desc
}

func newLogBufferCollector() *logBufferCollector {
	return &logBufferCollector{
		captured: prometheus.NewDesc("fingate_log_buffer_captured_total",
			"Log lines captured into the recent-log buffer", nil, nil),
		dropped: prometheus.NewDesc("fingate_log_buffer_dropped_total",
			"Log lines not captured into the recent-log buffer, by reason", []string{"reason"}, nil),
	}
}

func (c *logBufferCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.captured
	ch <- c.dropped
}

func (c *logBufferCollector) Collect(ch chan<- prometheus.Metric) {
	m := xglog.GetBufferMetrics()
	ch <- prometheus.MustNewConstMetric(c.captured, prometheus.CounterValue, float64(m.Captured))
	for reason, v := range map[string]uint64{
		"irrelevant":       m.DroppedIrrelevant,
		"too_large":        m.DroppedTooLargeLines,
		"partial_overflow": m.DroppedPartialOverflow,
		"malformed":        m.DroppedMalformed,
		"slow_subscriber":  m.DroppedSlowSubscriber,
	} {
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(v), reason)
	}
}

func init() {
	prometheus.MustRegister(newLogBufferCollector())
}
