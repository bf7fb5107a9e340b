// Package metrics exposes Prometheus instrumentation for the conversion
// orchestration layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "toolhub"
	subsystem = "conversion_api"
)

var (
	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dispatches_total",
		Help:      "Conversion dispatches by tool, mode (sync/async) and outcome.",
	}, []string{"tool", "mode", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent in the synchronous portion of a dispatch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool", "mode"})

	triggerAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trigger_attempts_total",
		Help:      "Remote compute trigger attempts by outcome (success/retryable/permanent).",
	}, []string{"category", "outcome"})

	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "callbacks_total",
		Help:      "Status callbacks received from the compute tier by outcome.",
	}, []string{"status", "outcome"})

	stalePendingExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stale_pending_executions",
		Help:      "Pending executions older than the staleness threshold at the last sweep.",
	})

	uploadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "upload_bytes_total",
		Help:      "Bytes accepted for conversion input by tool.",
	}, []string{"tool"})
)

// RecordDispatch counts a completed dispatch attempt.
func RecordDispatch(tool, mode, outcome string) {
	dispatchesTotal.WithLabelValues(tool, mode, outcome).Inc()
}

// ObserveDispatchDuration records how long the synchronous portion took.
func ObserveDispatchDuration(tool, mode string, seconds float64) {
	dispatchDuration.WithLabelValues(tool, mode).Observe(seconds)
}

// RecordTriggerAttempt counts one remote trigger attempt.
func RecordTriggerAttempt(category, outcome string) {
	triggerAttemptsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordCallback counts a received status callback.
func RecordCallback(status, outcome string) {
	callbacksTotal.WithLabelValues(status, outcome).Inc()
}

// SetStalePending publishes the latest stale-pending count from the sweeper.
func SetStalePending(count int) {
	stalePendingExecutions.Set(float64(count))
}

// RecordUploadBytes accumulates input bytes accepted for a tool.
func RecordUploadBytes(tool string, bytes int64) {
	uploadBytesTotal.WithLabelValues(tool).Add(float64(bytes))
}
