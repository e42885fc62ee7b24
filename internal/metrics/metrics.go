// Package metrics holds the Prometheus collectors shared by the store, the
// engine and the HTTP boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docbase"

var (
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "mutations_total", Help: "Mutations by action and outcome kind."},
		[]string{"action", "outcome"},
	)
	ImportedDocuments = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "imported_documents_total", Help: "Documents accepted by bulk import."},
	)
	StorageSaveSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "storage_save_seconds", Help: "Time spent writing the collection file.", Buckets: prometheus.DefBuckets},
	)
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "storage_errors_total", Help: "Storage failures by operation."},
		[]string{"op"},
	)
	CollectionSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "collection_documents", Help: "Documents in the collection after the last load or save."},
	)
	RateLimitAllowed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Mutating requests let through by the rate limiter."},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Mutating requests rejected by the rate limiter."},
	)
)

// RegisterCollectors registers every collector with reg.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		Mutations,
		ImportedDocuments,
		StorageSaveSeconds,
		StorageErrors,
		CollectionSize,
		RateLimitAllowed,
		RateLimitRejected,
	)
}
