// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	journalWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_journal_writes_total",
		Help: "Journal store operations by operation and result",
	}, []string{"op", "result"}) // result=ok|error|dropped

	journalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fingate_journal_queue_depth",
		Help: "Journal operations waiting for the writer",
	})

	journalPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fingate_journal_pruned_runs_total",
		Help: "Runs removed by journal retention",
	})
)

// RecordJournalWrite counts one journal operation.
func RecordJournalWrite(op, result string) {
	journalWritesTotal.WithLabelValues(op, result).Inc()
}

// SetJournalQueueDepth reports the writer backlog.
func SetJournalQueueDepth(n int) {
	journalQueueDepth.Set(float64(n))
}

// AddJournalPruned counts runs removed by retention.
func AddJournalPruned(n int) {
	journalPrunedTotal.Add(float64(n))
}
