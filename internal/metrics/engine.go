package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval engine Prometheus metrics.
var (
	IndexEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "entries",
		Help:      "Number of chunks in the vector index",
	})

	IndexDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "documents",
		Help:      "Number of registered documents",
	})

	IndexSaveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "save_duration_seconds",
		Help:      "Time to persist an index snapshot",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	EngineOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by type and status",
		},
		[]string{"operation", "status"},
	)

	EngineOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

var engineOnce sync.Once

// RegisterEngineMetrics registers engine metrics on the default registry.
func RegisterEngineMetrics() {
	engineOnce.Do(func() {
		prometheus.MustRegister(
			IndexEntries,
			IndexDocuments,
			IndexSaveDuration,
			EngineOperationsTotal,
			EngineOperationDuration,
		)
	})
}

// Status maps an error to the "status" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
