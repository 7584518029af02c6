package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sustainplate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// UpstreamAttempts counts calls to the text-generation service by outcome (success|failure).
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainplate_upstream_attempts_total",
			Help: "Total number of attempts against the text-generation service",
		},
		[]string{"outcome"},
	)

	// GroceryChanges counts grocery rows created and deleted.
	GroceryChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainplate_grocery_changes_total",
			Help: "Total number of grocery items created or deleted",
		},
		[]string{"op"},
	)
)
