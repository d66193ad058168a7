package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreHits tracks cache hits.
	StoreHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issuedeck_store_hits_total",
			Help: "Total number of store cache hits",
		},
	)

	// StoreMisses tracks cache misses, including corrupt entries.
	StoreMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issuedeck_store_misses_total",
			Help: "Total number of store cache misses",
		},
	)

	// StoreErrors tracks store operation errors.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuedeck_store_errors_total",
			Help: "Total number of store operation errors",
		},
		[]string{"operation"}, // "get", "set", "invalidate", "recency"
	)

	// RecencyPruned tracks keys dropped from the recency list because they
	// no longer resolve upstream.
	RecencyPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issuedeck_recency_pruned_total",
			Help: "Total number of keys pruned from the recency list",
		},
	)
)
