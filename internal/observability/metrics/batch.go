package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "operations_total",
		Help:      "Batch operations by kind and outcome (success or error kind).",
	}, []string{"kind", "outcome"})

	batchOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "operation_duration_seconds",
		Help:      "Time from amount resolution to finalization for one operation.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
	}, []string{"kind"})

	batchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "runs_total",
		Help:      "Completed batch invocations; zero_success marks batches where nothing went through.",
	}, []string{"kind", "zero_success"})

	jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "Asynchronous job status transitions.",
	}, []string{"status"})
)

// ObserveOperation records one batch leg.
func ObserveOperation(kind, outcome string, duration time.Duration) {
	batchOperations.WithLabelValues(kind, outcome).Inc()
	if duration > 0 {
		batchOperationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveBatch records a finished batch.
func ObserveBatch(kind string, zeroSuccess bool) {
	label := "false"
	if zeroSuccess {
		label = "true"
	}
	batchRuns.WithLabelValues(kind, label).Inc()
}

// ObserveJob records a job entering status.
func ObserveJob(status string) {
	jobTransitions.WithLabelValues(status).Inc()
}
