// Package metrics centralizes the prometheus/client_golang instruments
// used across the write and query paths, the way friggdb's pool package
// declares its gauges package-level with promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatapointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "datapoints_written_total",
		Help:      "Datapoints successfully committed to the backend.",
	})

	DatapointsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "datapoints_dropped_total",
		Help:      "Datapoints dropped before or during a flush.",
	}, []string{"reason"})

	BatchFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amondawa",
		Name:      "batch_flush_duration_seconds",
		Help:      "Time spent flushing a batch write handle.",
		Buckets:   prometheus.DefBuckets,
	})

	BatchFlushItems = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "batch_flush_items",
		Help:      "Items flushed across all batch writers.",
	})

	BlockState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "amondawa",
		Name:      "block_state",
		Help:      "Lifecycle state of each ring block (one gauge row per block, value is the state ordinal).",
	}, []string{"n"})

	MaintenanceRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "maintenance_runs_total",
		Help:      "Completed maintenance loop passes.",
	})

	MaintenanceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "maintenance_errors_total",
		Help:      "Maintenance loop passes that returned an error.",
	})

	QueryFanoutTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "amondawa",
		Name:      "query_fanout_tasks",
		Help:      "Per-key range query tasks launched by the most recent query.",
	})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amondawa",
		Name:      "query_duration_seconds",
		Help:      "End-to-end duration of a datastore query.",
		Buckets:   prometheus.DefBuckets,
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "cache_hits_total",
		Help:      "LRU cache hits.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amondawa",
		Name:      "cache_misses_total",
		Help:      "LRU cache misses.",
	}, []string{"cache"})
)
