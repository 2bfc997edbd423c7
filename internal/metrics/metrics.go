// Package metrics exposes Prometheus metrics for key regeneration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records regeneration outcomes. It satisfies rotation.Recorder and
// notify.DropRecorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	regenerations      *prometheus.CounterVec
	duration           prometheus.Histogram
	revocationFailures prometheus.Counter
	notificationsDrops prometheus.Counter
}

// New registers the metrics on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		regenerations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pterokeys_key_regenerations_total",
				Help: "Total number of API key regenerations by outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pterokeys_key_regeneration_duration_seconds",
			Help:    "Duration of API key regenerations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		revocationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pterokeys_key_revocation_failures_total",
			Help: "Total number of old API keys that could not be deleted from the panel",
		}),
		notificationsDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "pterokeys_notifications_dropped_total",
			Help: "Total number of notification events dropped due to queue overflow",
		}),
	}
}

// NewWithRuntime registers the metrics plus Go runtime and process
// collectors on a fresh registry.
func NewWithRuntime() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// ObserveRotation records the outcome and duration of one regeneration.
func (m *Metrics) ObserveRotation(outcome string, d time.Duration) {
	m.regenerations.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// RevocationFailed counts an old key left behind on the panel.
func (m *Metrics) RevocationFailed() {
	m.revocationFailures.Inc()
}

// NotificationDropped counts a notification lost to a full queue.
func (m *Metrics) NotificationDropped() {
	m.notificationsDrops.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
