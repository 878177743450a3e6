package observer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
)

// PrometheusRecorder exports invocation metrics.
type PrometheusRecorder struct {
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	memory      *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the sandbox metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_invocations_total",
				Help: "Total number of sandbox invocations by outcome status",
			},
			[]string{"phase", "status"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_invocation_failures_total",
				Help: "Invocations that ended with a pipeline error",
			},
			[]string{"phase", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_execution_time_ms",
				Help:    "Measured execution time in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"phase"},
		),
		memory: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_memory_peak_bytes",
				Help:    "Peak memory usage per invocation in bytes",
				Buckets: prometheus.ExponentialBuckets(1<<20, 4, 7),
			},
			[]string{"phase"},
		),
	}
}

func (r *PrometheusRecorder) ObservePhase(_ context.Context, phase profile.Phase, status result.Status, timeMs float64, memoryBytes int64) {
	r.invocations.WithLabelValues(string(phase), string(status)).Inc()
	r.duration.WithLabelValues(string(phase)).Observe(timeMs)
	r.memory.WithLabelValues(string(phase)).Observe(float64(memoryBytes))
}

func (r *PrometheusRecorder) ObserveFailure(_ context.Context, phase profile.Phase, code string) {
	r.failures.WithLabelValues(string(phase), code).Inc()
}
