package clients

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Values: 0=closed, 1=half-open, 2=open
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marvin",
		Name:      "circuit_breaker_state",
		Help:      "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	circuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "circuit_breaker_state_transitions_total",
		Help:      "Total number of circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)

func recordState(name string, state CircuitBreakerState) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func recordTransition(name string, from, to CircuitBreakerState) {
	circuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	recordState(name, to)
}
