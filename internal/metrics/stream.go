// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restream_sessions_active",
		Help: "Number of stream sessions currently occupying a concurrency slot",
	})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_session_transitions_total",
		Help: "Stream session state transitions",
	}, []string{"from", "to"})

	sessionStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_session_start_total",
		Help: "Stream start requests by outcome",
	}, []string{"outcome"}) // outcome=live|denied|invalid|spawn_failed|asset_not_found|error

	quotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_quota_denials_total",
		Help: "Quota gate denials by kind",
	}, []string{"kind"})

	scheduledStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_scheduled_stops_total",
		Help: "Scheduled stop triggers by result",
	}, []string{"result"}) // result=armed|disarmed|fired|stale

	persistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_persistence_errors_total",
		Help: "Fire-and-forget persistence failures by operation",
	}, []string{"op"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_reconciliations_total",
		Help: "Sessions reconciled against the supervisor live set",
	}, []string{"to"})
)

// SetSessionsActive records the number of non-terminal sessions.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// IncSessionTransition records a state machine edge.
func IncSessionTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// IncSessionStart records the outcome of a start request.
func IncSessionStart(outcome string) {
	sessionStartTotal.WithLabelValues(outcome).Inc()
}

// IncQuotaDenial records a quota gate denial.
func IncQuotaDenial(kind string) {
	quotaDenials.WithLabelValues(kind).Inc()
}

// IncScheduledStop records a scheduler event.
func IncScheduledStop(result string) {
	scheduledStops.WithLabelValues(result).Inc()
}

// IncPersistenceError records a swallowed persistence failure.
func IncPersistenceError(op string) {
	persistenceErrors.WithLabelValues(op).Inc()
}

// IncReconciliation records a live-set reconciliation.
func IncReconciliation(to string) {
	reconciliations.WithLabelValues(to).Inc()
}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "restream_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open by reason",
	}, []string{"name", "reason"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_circuit_breaker_rejections_total",
		Help: "Calls short-circuited by an open breaker",
	}, []string{"name"})
)

// SetCircuitBreakerState exports a breaker's current state.
func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(name, reason string) {
	breakerTrips.WithLabelValues(name, reason).Inc()
}

// IncCircuitBreakerRejection counts a call refused while open.
func IncCircuitBreakerRejection(name string) {
	breakerRejections.WithLabelValues(name).Inc()
}
