// Package metrics exposes Prometheus instruments for the answer engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// It implements ports.Observer.
type Metrics struct {
	ChatRequests    *prometheus.CounterVec
	RetrievedChunks prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	Feedback        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers instruments on reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by answer outcome.",
		}, []string{"outcome"}),
		RetrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_chunks",
			Help:      "Context chunks kept after compression per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of request stages.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		Feedback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "User feedback on answers by rating.",
		}, []string{"rating"}),
		gatherer: reg,
	}
}

// ObserveAnswer counts a finished chat request.
func (m *Metrics) ObserveAnswer(outcome string) {
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRetrieved records how many chunks survived compression.
func (m *Metrics) ObserveRetrieved(n int) {
	m.RetrievedChunks.Observe(float64(n))
}

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// ObserveFeedback counts a feedback submission.
func (m *Metrics) ObserveFeedback(rating string) {
	m.Feedback.WithLabelValues(rating).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
