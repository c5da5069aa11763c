package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peptide"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	tierResultsTotal *prometheus.CounterVec
	tierDuration     *prometheus.HistogramVec
	answersTotal     *prometheus.CounterVec
	answerDuration   *prometheus.HistogramVec

	externalCallsTotal   *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	externalCostTotal    *prometheus.CounterVec
	externalTokensTotal  *prometheus.CounterVec

	backgroundTasksTotal *prometheus.CounterVec
	backgroundDuration   *prometheus.HistogramVec

	resilienceMetrics
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
	tierResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "tier_results_total",
			Help:      "Cascade tier outcomes by tier and status.",
		},
		[]string{"service", "tier", "status"},
	)
	tierDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "tier_duration_seconds",
			Help:      "Time spent in each cascade tier.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "tier"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "answers_total",
			Help:      "Completed cascade runs by terminal state and source.",
		},
		[]string{"service", "state", "source"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "duration_seconds",
			Help:      "End-to-end cascade duration by answer source.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "source"},
	)
	externalCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "External API calls by provider, operation and status.",
		},
		[]string{"service", "provider", "operation", "status"},
	)
	externalCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "External API call latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"service", "provider", "operation"},
	)
	externalCostTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_cost_usd_total",
			Help:      "Estimated external API spend in USD.",
		},
		[]string{"service", "provider"},
	)
	externalTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage reported by the model provider.",
		},
		[]string{"service", "direction", "model"},
	)
	backgroundTasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "tasks_total",
			Help:      "Background tasks by name and outcome.",
		},
		[]string{"service", "task", "outcome"},
	)
	backgroundDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "task_duration_seconds",
			Help:      "Background task duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "task"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		tierResultsTotal,
		tierDuration,
		answersTotal,
		answerDuration,
		externalCallsTotal,
		externalCallDuration,
		externalCostTotal,
		externalTokensTotal,
		backgroundTasksTotal,
		backgroundDuration,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		tierResultsTotal:     tierResultsTotal,
		tierDuration:         tierDuration,
		answersTotal:         answersTotal,
		answerDuration:       answerDuration,
		externalCallsTotal:   externalCallsTotal,
		externalCallDuration: externalCallDuration,
		externalCostTotal:    externalCostTotal,
		externalTokensTotal:  externalTokensTotal,
		backgroundTasksTotal: backgroundTasksTotal,
		backgroundDuration:   backgroundDuration,
		resilienceMetrics:    newResilienceMetrics(registry, service),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/chat/query/"):
		return "/v1/chat/query/{peptide_name}"
	case strings.HasPrefix(path, "/v1/chat/sessions/"):
		return "/v1/chat/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/peptides/") && strings.HasSuffix(path, "/similar"):
		return "/v1/peptides/{name}/similar"
	case strings.HasPrefix(path, "/v1/peptides/"):
		return "/v1/peptides/{name}"
	case strings.HasPrefix(path, "/v1/admin/allowed-urls/"):
		return "/v1/admin/allowed-urls/{id}"
	case strings.HasPrefix(path, "/v1/admin/chat-restrictions/"):
		return "/v1/admin/chat-restrictions/{id}"
	default:
		return path
	}
}

// RecordExternalCall is the sink for the external call tracker.
func (m *HTTPServerMetrics) RecordExternalCall(provider, operation, model string, statusCode int, duration time.Duration, costUSD float64, tokensIn, tokensOut int) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.externalCallsTotal.WithLabelValues(m.service, provider, operation, status).Inc()
	m.externalCallDuration.WithLabelValues(m.service, provider, operation).Observe(duration.Seconds())
	if costUSD > 0 {
		m.externalCostTotal.WithLabelValues(m.service, provider).Add(costUSD)
	}
	if model == "" {
		model = "unknown"
	}
	if tokensIn > 0 {
		m.externalTokensTotal.WithLabelValues(m.service, "in", model).Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.externalTokensTotal.WithLabelValues(m.service, "out", model).Add(float64(tokensOut))
	}
}

// ObserveTask records a background task outcome: success, error or dropped.
func (m *HTTPServerMetrics) ObserveTask(task, outcome string, duration time.Duration) {
	m.backgroundTasksTotal.WithLabelValues(m.service, task, outcome).Inc()
	if outcome != "dropped" {
		m.backgroundDuration.WithLabelValues(m.service, task).Observe(duration.Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
