package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP transport metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	RequestsTotal  *prometheus.CounterVec
	Panics         prometheus.Counter
}

// New creates and registers the transport metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_http_requests_total",
			Help: "HTTP requests by route and status class",
		}, []string{"method", "route", "status"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_http_panics_total",
			Help: "Handler panics recovered by the server",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(method, route).Observe(d.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// IncrementPanics counts a recovered panic.
func (m *Metrics) IncrementPanics() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}
