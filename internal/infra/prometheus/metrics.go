package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the resolution pipeline and the reconciliation
// subsystem. Registered on the default registry served by /metrics.
var (
	// ResolveOutcomes counts resolutions by outcome label
	// (redirect, requires_password, not_found, denied_<reason>).
	ResolveOutcomes = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: "hoplink",
		Name:      "resolve_outcomes_total",
		Help:      "Resolution outcomes by kind and deny reason.",
	}, []string{"outcome"})

	// ReconcileDuration observes one full counter recomputation.
	ReconcileDuration = promauto.NewHistogram(prom.HistogramOpts{
		Namespace: "hoplink",
		Name:      "reconcile_duration_seconds",
		Help:      "Time to recompute one link's rollup counters.",
		Buckets:   prom.DefBuckets,
	})

	// ReconcileQueueDepth tracks link IDs waiting on the worker shards.
	ReconcileQueueDepth = promauto.NewGauge(prom.GaugeOpts{
		Namespace: "hoplink",
		Name:      "reconcile_queue_depth",
		Help:      "Pending reconcile signals across all worker shards.",
	})
)
