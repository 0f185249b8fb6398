package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = []string{"closed", "half-open", "open"}

// ResilienceMetrics records upstream retries and circuit breaker state per operation.
type ResilienceMetrics struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewResilienceMetrics(registry prometheus.Registerer, service string) *ResilienceMetrics {
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried upstream calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "1 for the current circuit breaker state of an operation.",
		},
		[]string{"service", "operation", "state"},
	)
	registry.MustRegister(retriesTotal, breakerState)

	return &ResilienceMetrics{service: service, retriesTotal: retriesTotal, breakerState: breakerState}
}

func (m *ResilienceMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) ObserveBreakerState(operation, state string) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.breakerState.WithLabelValues(m.service, operation, s).Set(value)
	}
}
