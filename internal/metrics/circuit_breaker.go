// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker states as exported in the state label.
const (
	BreakerClosed   = "closed"
	BreakerHalfOpen = "half-open"
	BreakerOpen     = "open"
)

var breakerStates = [...]string{BreakerClosed, BreakerHalfOpen, BreakerOpen}

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgstream_circuit_breaker_state",
		Help: "Active breaker state per component, one-hot",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_circuit_breaker_trips_total",
		Help: "Transitions into the open state",
	}, []string{"component", "reason"})

	circuitBreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_circuit_breaker_rejected_total",
		Help: "Calls refused while the breaker was open",
	}, []string{"component"})
)

// SetCircuitBreakerState sets the gauge of state to 1 and every other
// state of component to 0.
func SetCircuitBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(component, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}

func RecordCircuitBreakerRejected(component string) {
	circuitBreakerRejected.WithLabelValues(component).Inc()
}
