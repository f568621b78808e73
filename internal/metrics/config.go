// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fingate_config_reloads_total",
		Help: "Configuration reload attempts by result",
	}, []string{"result"}) // result=success|rejected

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fingate_build_info",
		Help: "Build information, constant 1",
	}, []string{"version", "commit", "build_date"})
)

// RecordConfigReload counts one reload attempt.
func RecordConfigReload(result string) {
	configReloadsTotal.WithLabelValues(result).Inc()
}

// SetBuildInfo publishes the running build.
func SetBuildInfo(version, commit, buildDate string) {
	buildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
