package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfrag"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragAnswersTotal     *prometheus.CounterVec
	ragAbstainedTotal   *prometheus.CounterVec
	ragFollowUpRewrites *prometheus.CounterVec
	ragCitations        *prometheus.HistogramVec
	ragDuration         *prometheus.HistogramVec
	indexReloadsTotal   *prometheus.CounterVec

	Upstream *UpstreamMetrics
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragAnswersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "answers_total",
			Help:      "Total answered questions by retrieval outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	ragAbstainedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "abstained_total",
			Help:      "Total answers replaced by the fixed abstention message.",
		},
		[]string{"service", "endpoint"},
	)
	ragFollowUpRewrites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "followup_rewrites_total",
			Help:      "Total questions whose retrieval query was augmented with the previous user turn.",
		},
		[]string{"service", "endpoint"},
	)
	ragCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "citations",
			Help:      "Distribution of distinct citations per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	indexReloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "reloads_total",
			Help:      "Index reload attempts by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragAnswersTotal,
		ragAbstainedTotal,
		ragFollowUpRewrites,
		ragCitations,
		ragDuration,
		indexReloadsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		ragAnswersTotal:     ragAnswersTotal,
		ragAbstainedTotal:   ragAbstainedTotal,
		ragFollowUpRewrites: ragFollowUpRewrites,
		ragCitations:        ragCitations,
		ragDuration:         ragDuration,
		indexReloadsTotal:   indexReloadsTotal,
		Upstream:            newUpstreamMetrics(registry, service),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()
		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded: session IDs are collapsed
// and unknown paths share one label.
func normalizePath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/sessions/"); ok {
		if _, tail, found := strings.Cut(rest, "/"); found {
			return "/v1/sessions/{session_id}/" + tail
		}
		return "/v1/sessions/{session_id}"
	}
	switch path {
	case "/healthz", "/metrics", "/v1/rag/query", "/v1/sessions", "/v1/sources",
		"/v1/documents", "/v1/index/rebuild", "/v1/index/runs/latest":
		return path
	}
	return "other"
}

// RecordAnswer is called once per answered question, abstentions included.
func (m *HTTPServerMetrics) RecordAnswer(service, endpoint, outcome string, abstained, rewritten bool, citations int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.ragAnswersTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.ragCitations.WithLabelValues(service, endpoint).Observe(float64(citations))
	m.ragDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if abstained {
		m.ragAbstainedTotal.WithLabelValues(service, endpoint).Inc()
	}
	if rewritten {
		m.ragFollowUpRewrites.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordIndexReload(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexReloadsTotal.WithLabelValues(service, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
