// Package metrics holds the Prometheus collectors shared by the fetcher,
// the aggregator and the HTTP service. Collectors register on the default
// registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "column_indexer"

var (
	// PageFetches counts listing page requests by outcome (ok, error).
	PageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "page_fetches_total",
		Help:      "Listing page requests by outcome.",
	}, []string{"outcome"})

	// PageFetchSeconds measures one page request.
	PageFetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "page_fetch_seconds",
		Help:      "Latency of a single listing page request.",
		Buckets:   prometheus.DefBuckets,
	})

	// CacheLookups counts index cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Column index cache lookups by result.",
	}, []string{"result"})

	// Refinements counts completed background batches.
	Refinements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "refinements_total",
		Help:      "Background remaining-page batches that completed.",
	})

	// RefineSeconds measures how long a background batch took.
	RefineSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "refine_seconds",
		Help:      "Duration of remaining-page batches.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// SpySessions tracks attached viewport spies over websocket.
	SpySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "spy_sessions",
		Help:      "Currently attached viewport spy sessions.",
	})
)
