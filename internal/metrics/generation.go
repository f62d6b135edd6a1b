package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"provider", "model", "type"}, // "prompt" / "completion"
	)

	GenerationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Total generation errors",
		},
		[]string{"provider", "model", "error_type"},
	)
)

var genOnce sync.Once

// RegisterGenerationMetrics registers generation metrics on the default registry.
func RegisterGenerationMetrics() {
	genOnce.Do(func() {
		prometheus.MustRegister(
			GenerationRequestsTotal,
			GenerationRequestDuration,
			GenerationTokensTotal,
			GenerationErrorsTotal,
		)
	})
}
