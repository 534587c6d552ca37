// Package metrics provides Prometheus instrumentation for Compass.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_completion_calls_total",
			Help: "Total number of completion service calls",
		},
		[]string{"status"}, // status: success, rate_limited, error
	)

	completionRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_completion_retries_total",
			Help: "Total number of completion call retries after rate limiting",
		},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_turns_total",
			Help: "Total number of orchestrated conversation turns",
		},
		[]string{"stage"},
	)

	turnConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_turn_conflicts_total",
			Help: "Turns rejected because one was already in flight for the identity",
		},
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

// RecordCompletionCall records the outcome of one completion service call.
func RecordCompletionCall(status string) {
	completionCallsTotal.WithLabelValues(status).Inc()
}

// RecordCompletionRetry records a backoff retry of a completion call.
func RecordCompletionRetry() {
	completionRetriesTotal.Inc()
}

// RecordTurn records one orchestrated turn and its duration.
func RecordTurn(stage string, d time.Duration) {
	turnsTotal.WithLabelValues(stage).Inc()
	turnDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordTurnConflict records a turn rejected by the admission gate.
func RecordTurnConflict() {
	turnConflictsTotal.Inc()
}
