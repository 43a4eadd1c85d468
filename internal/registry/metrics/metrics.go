package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry context.
type Metrics struct {
	// Ledger mutations
	IssuersAdded       prometheus.Counter
	StatusTransitions  *prometheus.CounterVec
	CertificatesIssued prometheus.Counter
	RejectedOperations *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec

	// Faucet requests by requested role and outcome
	FaucetRequests *prometheus.CounterVec

	// Projection reads
	ProjectionLatency *prometheus.HistogramVec
	EventsReplayed    *prometheus.CounterVec
	StaleDiscards     prometheus.Counter

	// Credential detail cache
	CacheLookups *prometheus.CounterVec
}

// New registers the registry metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		IssuersAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_issuers_added_total",
			Help: "Total number of issuers registered",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_issuer_status_transitions_total",
			Help: "Issuer status transitions by target status",
		}, []string{"status"}),
		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_certificates_issued_total",
			Help: "Total number of credentials minted",
		}),
		RejectedOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_ledger_rejections_total",
			Help: "Rejected ledger operations by operation and error code",
		}, []string{"operation", "code"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_events_published_total",
			Help: "Committed events mirrored downstream by result",
		}, []string{"result"}), // result: "ok", "error"
		FaucetRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_faucet_requests_total",
			Help: "Faucet role requests by role and outcome",
		}, []string{"role", "outcome"}),
		ProjectionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_projection_duration_seconds",
			Help:    "Duration of projection rebuilds by view",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"view"}),
		EventsReplayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_projection_events_replayed_total",
			Help: "Events read from the log while rebuilding views",
		}, []string{"view"}),
		StaleDiscards: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_projection_stale_discards_total",
			Help: "Projection results discarded because the session identity changed",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_credential_cache_lookups_total",
			Help: "Credential cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"
	}
}

func (m *Metrics) IncrementIssuersAdded() {
	if m != nil {
		m.IssuersAdded.Inc()
	}
}

func (m *Metrics) IncrementStatusTransition(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementCertificatesIssued() {
	if m != nil {
		m.CertificatesIssued.Inc()
	}
}

// IncrementRejected records a ledger operation rejected with code.
func (m *Metrics) IncrementRejected(operation, code string) {
	if m != nil {
		m.RejectedOperations.WithLabelValues(operation, code).Inc()
	}
}

func (m *Metrics) AddEventsPublished(result string, n int) {
	if m != nil {
		m.EventsPublished.WithLabelValues(result).Add(float64(n))
	}
}

func (m *Metrics) IncrementFaucetRequest(role, outcome string) {
	if m != nil {
		m.FaucetRequests.WithLabelValues(role, outcome).Inc()
	}
}

// ObserveProjection records the duration of one view rebuild.
func (m *Metrics) ObserveProjection(view string, d time.Duration) {
	if m != nil {
		m.ProjectionLatency.WithLabelValues(view).Observe(d.Seconds())
	}
}

func (m *Metrics) AddEventsReplayed(view string, n int) {
	if m != nil {
		m.EventsReplayed.WithLabelValues(view).Add(float64(n))
	}
}

func (m *Metrics) IncrementStaleDiscards() {
	if m != nil {
		m.StaleDiscards.Inc()
	}
}

func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
