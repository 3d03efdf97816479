// Package metrics exposes the Prometheus collectors the recovery
// supervisor updates, grounded on
// Harsh-BH-Sentinel/worker/internal/metrics/prometheus.go's
// promauto-registered package-level collector pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconnectAttemptsTotal counts every transport open attempt made
	// by the recovery supervisor, labeled by outcome.
	ReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artemis_reconnect_attempts_total",
			Help: "Total number of transport (re)connect attempts made by the recovery supervisor.",
		},
		[]string{"outcome"},
	)

	// ConnectionState is 1 when the logical connection is open, 0
	// otherwise.
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "artemis_connection_open",
			Help: "1 if the logical connection is currently open, 0 otherwise.",
		},
	)

	// RecoveryDuration tracks how long a full reconnect cycle
	// (suspend -> connect -> recover -> resume) takes.
	RecoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "artemis_recovery_duration_seconds",
			Help:    "Duration of a full recovery cycle in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// RecoverablesAttached tracks how many recoverables are currently
	// in the Attached state.
	RecoverablesAttached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "artemis_recoverables_attached",
			Help: "Number of recoverables currently attached.",
		},
	)
)
