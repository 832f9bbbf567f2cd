// Package metrics holds the Prometheus collectors of the record adapter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_operations_total",
		Help: "Number of record adapter operations by operation, collection and status",
	}, []string{"operation", "collection", "status"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "records_operation_duration_seconds",
		Help:    "Latency of record adapter operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	indexesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provision_indexes_total",
		Help: "Index provisioning attempts by index kind and outcome",
	}, []string{"kind", "outcome"})

	collectionsConfigured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provision_collections_configured_total",
		Help: "Number of collections registered since process start",
	})
)

// ObserveOperation records one finished adapter operation.
func ObserveOperation(operation, collection string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(operation, collection, status).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveIndex records the outcome of one index creation attempt.
func ObserveIndex(kind, outcome string) {
	indexesTotal.WithLabelValues(kind, outcome).Inc()
}

func CollectionConfigured() {
	collectionsConfigured.Inc()
}
