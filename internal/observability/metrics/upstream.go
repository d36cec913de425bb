package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics counts retries and breaker transitions for Ollama and NATS
// calls. It satisfies resilience.Observer.
type UpstreamMetrics struct {
	service      string
	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newUpstreamMetrics(registry *prometheus.Registry, service string) *UpstreamMetrics {
	retries := prometheus.NewCounterVec(
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
			Name:      "breaker_open",
			Help:      "1 while the operation's circuit breaker is open, 0.5 when half-open.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(retries, breakerState)
	return &UpstreamMetrics{service: service, retries: retries, breakerState: breakerState}
}

func (m *UpstreamMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *UpstreamMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "open":
		value = 1
	case "half-open":
		value = 0.5
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
