package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = []string{"closed", "half-open", "open"}

// resilienceMetrics satisfies resilience.Observer for both processes.
type resilienceMetrics struct {
	service      string
	breakerState *prometheus.GaugeVec
	retriesTotal *prometheus.CounterVec
}

func newResilienceMetrics(registry *prometheus.Registry, service string) resilienceMetrics {
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation; 1 marks the current state.",
		},
		[]string{"service", "operation", "state"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried attempts per operation.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(breakerState, retriesTotal)
	return resilienceMetrics{service: service, breakerState: breakerState, retriesTotal: retriesTotal}
}

func (m resilienceMetrics) ObserveBreakerState(operation, state string) {
	for _, candidate := range breakerStates {
		value := 0.0
		if candidate == state {
			value = 1
		}
		m.breakerState.WithLabelValues(m.service, operation, candidate).Set(value)
	}
}

func (m resilienceMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}
