package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the transcript consumer process.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	transcriptsTotal   *prometheus.CounterVec
	transcriptDuration *prometheus.HistogramVec
	transcriptInFlight prometheus.Gauge
	messagesTotal      *prometheus.CounterVec
	queueLag           prometheus.Histogram

	resilienceMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	transcriptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "transcripts_total",
			Help:        "Transcript events handled by outcome.",
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	transcriptDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "transcript_write_seconds",
			Help:        "Time spent writing one transcript event.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	transcriptInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "transcripts_in_flight",
			Help:        "Transcript events currently being written.",
			ConstLabels: labels,
		},
	)
	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "messages_written_total",
			Help:        "Chat messages persisted by role.",
			ConstLabels: labels,
		},
		[]string{"role"},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between publishing a transcript and consuming it.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			ConstLabels: labels,
		},
	)

	registry.MustRegister(transcriptsTotal, transcriptDuration, transcriptInFlight, messagesTotal, queueLag)

	return &WorkerMetrics{
		registry:           registry,
		service:            service,
		transcriptsTotal:   transcriptsTotal,
		transcriptDuration: transcriptDuration,
		transcriptInFlight: transcriptInFlight,
		messagesTotal:      messagesTotal,
		queueLag:           queueLag,
		resilienceMetrics:  newResilienceMetrics(registry, service),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTranscript() {
	m.transcriptInFlight.Inc()
}

// FinishTranscript closes the span opened by StartTranscript. Messages are
// counted only for successful writes.
func (m *WorkerMetrics) FinishTranscript(roles []string, duration time.Duration, err error) {
	m.transcriptInFlight.Dec()

	status := "written"
	if err != nil {
		status = "failed"
	}
	m.transcriptsTotal.WithLabelValues(status).Inc()
	m.transcriptDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err != nil {
		return
	}
	for _, role := range roles {
		m.messagesTotal.WithLabelValues(role).Inc()
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

// RejectTranscript counts events that never reached the writer, such as
// undecodable payloads.
func (m *WorkerMetrics) RejectTranscript() {
	m.transcriptsTotal.WithLabelValues("rejected").Inc()
}
