// Package telemetry holds the process-wide Prometheus collectors and the optional
// OpenTelemetry tracer provider.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deduction outcomes.
const (
	OutcomeCommitted     = "committed"
	OutcomeAborted       = "aborted"
	OutcomeConflictRetry = "conflict_retry"
	OutcomeReferential   = "referential"
	OutcomeError         = "error"
)

var (
	// OrderTransitions counts order state changes by target status.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cafepos_order_transitions_total",
		Help: "Order state transitions by target status",
	}, []string{"status"})

	// DeductionOutcomes counts deduction attempts by outcome.
	DeductionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cafepos_deduction_outcomes_total",
		Help: "Stock deduction transaction attempts by outcome",
	}, []string{"outcome"})

	// DeductionDuration tracks the latency of a whole completion including retries.
	DeductionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cafepos_deduction_duration_seconds",
		Help:    "Stock deduction duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// CartValidations counts cart validations by result.
	CartValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cafepos_cart_validations_total",
		Help: "Cart validations by result",
	}, []string{"result"})

	// MovementDrops counts audit entries that could not be written.
	MovementDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cafepos_movement_dropped_total",
		Help: "Stock movement entries dropped or failed to write",
	})
)

// Result maps a boolean outcome onto a label value.
func Result(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
