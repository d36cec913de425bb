package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	rebuildTotal    *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	rebuildInFlight prometheus.Gauge
	indexedChunks   prometheus.Gauge
	fileOutcomes    *prometheus.CounterVec

	Upstream *UpstreamMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	rebuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "index_rebuild_total",
			Help:      "Total index rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "index_rebuild_in_flight",
			Help:      "Number of running index rebuilds.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	indexedChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "indexed_chunks",
			Help:      "Chunks in the most recently written index generation.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	fileOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "files_total",
			Help:      "Files seen by index rebuilds by outcome.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(rebuildTotal, rebuildDuration, rebuildInFlight, indexedChunks, fileOutcomes)

	return &WorkerMetrics{
		registry:        registry,
		rebuildTotal:    rebuildTotal,
		rebuildDuration: rebuildDuration,
		rebuildInFlight: rebuildInFlight,
		indexedChunks:   indexedChunks,
		fileOutcomes:    fileOutcomes,
		Upstream:        newUpstreamMetrics(registry, service),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

// FinishRebuild records a completed run. chunks is only applied on success,
// since a failed rebuild leaves the previous generation in place.
func (m *WorkerMetrics) FinishRebuild(service string, duration time.Duration, chunks int, fileStatuses []string, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.rebuildTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	for _, fileStatus := range fileStatuses {
		m.fileOutcomes.WithLabelValues(service, fileStatus).Inc()
	}
	if err == nil {
		m.indexedChunks.Set(float64(chunks))
	}
}
