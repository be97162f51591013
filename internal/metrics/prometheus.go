// Package metrics implements the metrics reporter: a process-local
// outcome tally flushed once a second to the log, plus a Prometheus
// exposition surface for fleet-wide dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ratelimiter"

var (
	// AdmissionOutcomes counts every admission decision by outcome: success,
	// throttled, or failed (store error).
	AdmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_outcomes_total",
			Help:      "Total admission decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// DecisionLatency observes the wall time spent inside CheckAndConsume,
	// including the store round trip.
	DecisionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_latency_seconds",
			Help:      "Latency of the rate-limit admission decision.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
