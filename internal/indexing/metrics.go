package indexing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "indexing",
			Name:      "posts_indexed_total",
			Help:      "Posts written to the similarity index.",
		},
	)

	postsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engagement",
			Subsystem: "indexing",
			Name:      "posts_dropped_total",
			Help:      "Posts not indexed, by reason.",
		},
		[]string{"reason"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "engagement",
			Subsystem: "indexing",
			Name:      "queue_depth",
			Help:      "Posts waiting to be indexed.",
		},
	)
)
