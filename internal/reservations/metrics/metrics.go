package metrics

import (
	apperrors "loanbook/pkg/errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OpCreate = "create"
	OpFinish = "finish"
	OpCancel = "cancel"
	OpAccept = "accept"

	OutcomeSuccess     = "success"
	OutcomeValidation  = "validation"
	OutcomeNotFound    = "not_found"
	OutcomeConflict    = "conflict"
	OutcomeConcurrency = "concurrency"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	CoordinatorOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_coordinator_outcomes_total",
			Help: "Reservation coordinator operations by outcome",
		},
		[]string{"operation", "outcome"},
	)
	CoordinatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservations_coordinator_duration_seconds",
			Help:    "Reservation coordinator operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	LockWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_lock_busy_total",
			Help: "Item lock acquisitions refused because another caller held the lock",
		},
	)
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_event_publish_failures_total",
			Help: "Reservation events that could not be published after commit",
		},
		[]string{"event_type"},
	)
)

// Observe records one coordinator call.
func Observe(operation, outcome string, started time.Time) {
	CoordinatorOutcomes.WithLabelValues(operation, outcome).Inc()
	CoordinatorDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// OutcomeOf maps an operation result onto an outcome label.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	appErr := apperrors.AsAppError(err)
	switch appErr.Code {
	case apperrors.CodeValidation, apperrors.CodeInvalidInput:
		return OutcomeValidation
	case apperrors.CodeNotFound:
		return OutcomeNotFound
	case apperrors.CodeConflict:
		return OutcomeConflict
	case apperrors.CodeConcurrency:
		return OutcomeConcurrency
	case apperrors.CodeUnavailable:
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
