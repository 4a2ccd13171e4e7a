package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vantage",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		},
		[]string{"step"},
	)

	stepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vantage",
			Subsystem: "pipeline",
			Name:      "step_total",
			Help:      "Total number of step executions by outcome",
		},
		[]string{"step", "outcome"},
	)

	retryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vantage",
			Subsystem: "pipeline",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry waits by step",
		},
		[]string{"step"},
	)

	devicesConfigured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vantage",
			Subsystem: "devices",
			Name:      "configured_total",
			Help:      "Total number of device configuration attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func observeStep(step, outcome string, elapsed time.Duration) {
	stepTotal.WithLabelValues(step, outcome).Inc()
	stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveDeviceConfigured records one device configuration attempt.
func ObserveDeviceConfigured(outcome string) {
	devicesConfigured.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one retry wait for a step.
func ObserveRetry(step string) {
	retryAttempts.WithLabelValues(step).Inc()
}
