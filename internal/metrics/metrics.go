// Package metrics exposes Prometheus collectors shared by the collection,
// the enrichment resolver and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts collection commands by operation and outcome.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_collection_operations_total",
		Help: "Collection commands by operation and outcome",
	}, []string{"operation", "outcome"})

	// OperationDuration observes collection command latency including the
	// remote round trip.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "librarian_collection_operation_duration_seconds",
		Help:    "Collection command latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	// Reloads counts full reloads from the remote store by reason.
	Reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_collection_reloads_total",
		Help: "Full reloads of the collection cache by reason",
	}, []string{"reason"})

	// EnrichmentLookups counts source queries by source and result.
	EnrichmentLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_enrichment_lookups_total",
		Help: "Metadata source lookups by source and result",
	}, []string{"source", "result"})

	// DiscardedSuggestions counts enrichment results that arrived for a
	// closed or superseded edit session.
	DiscardedSuggestions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "librarian_enrichment_discarded_suggestions_total",
		Help: "Enrichment results discarded because the edit session moved on",
	})
)

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeConflict   = "conflict"
	OutcomeNotFound   = "not_found"
	OutcomeRemoteFail = "remote_failure"
)
