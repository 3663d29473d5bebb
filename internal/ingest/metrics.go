package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Ingestion batches completed, by kind.",
		},
		[]string{"kind"},
	)

	postsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "ingest",
			Name:      "posts_total",
			Help:      "Ingestion units by kind and result (processed, skipped, failed).",
		},
		[]string{"kind", "result"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engagement",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of ingestion batches.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)
)
