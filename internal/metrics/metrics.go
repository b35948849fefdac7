package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts extracted operations by provenance and terminal state.
	// Labels: provenance (directive, code_block), state (executed, rejected, parse_failed, ...)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "actions",
		Name:      "operations_total",
		Help:      "Extracted operations by provenance and terminal state",
	}, []string{"provenance", "state"})

	// modelCallsTotal counts model-service calls by provider and status (ok, error).
	modelCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "model",
		Name:      "calls_total",
		Help:      "Model-service calls by provider and status",
	}, []string{"provider", "status"})

	modelLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assistant",
		Subsystem: "model",
		Name:      "latency_seconds",
		Help:      "Model-service call latency",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	// activationsTotal counts reference activations by model and status.
	activationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "references",
		Name:      "activations_total",
		Help:      "Entity reference activations by model and status",
	}, []string{"model", "status"})

	busyRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "sessions",
		Name:      "busy_rejections_total",
		Help:      "Messages rejected because the session already had one in flight",
	})
)

// RecordOperation records the terminal state of one extracted operation.
func RecordOperation(provenance, state string) {
	operationsTotal.WithLabelValues(provenance, state).Inc()
}

// RecordModelCall records one model-service call.
func RecordModelCall(provider string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	modelCallsTotal.WithLabelValues(provider, status).Inc()
	modelLatencySeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func RecordActivation(model, status string) {
	activationsTotal.WithLabelValues(model, status).Inc()
}

func RecordBusyRejection() {
	busyRejectionsTotal.Inc()
}
