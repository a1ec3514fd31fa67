package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the service. Each instance owns
// its registry so tests can build independent sets.
type Metrics struct {
	Registry *prometheus.Registry

	PassesTotal       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	QuoteFailures     *prometheus.CounterVec
	AlertOutcomes     *prometheus.CounterVec
	GateDecisions     *prometheus.CounterVec
	BreakerOpen       prometheus.Gauge
	TriggerEvents     *prometheus.CounterVec
	PublishedEvents   *prometheus.CounterVec
	NameCacheRequests *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_passes_total",
			Help: "Evaluation passes by result",
		}, []string{"result"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alert_pass_duration_seconds",
			Help:    "Wall time of one evaluation pass",
			Buckets: prometheus.DefBuckets,
		}),
		QuoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_quote_failures_total",
			Help: "Market data fetch failures by symbol",
		}, []string{"symbol"}),
		AlertOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_outcomes_total",
			Help: "Triggered alert outcomes",
		}, []string{"outcome"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_decisions_total",
			Help: "Eligibility gate answers by category, source and result",
		}, []string{"category", "source", "allowed"}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eligibility_breaker_open",
			Help: "1 while the preference store circuit breaker is open",
		}),
		TriggerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_trigger_requests_total",
			Help: "Pass trigger requests by source",
		}, []string{"source"}),
		PublishedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_events_published_total",
			Help: "Alert events written to Kafka by result",
		}, []string{"result"}),
		NameCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "company_name_cache_requests_total",
			Help: "Company name cache lookups by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PassesTotal,
		m.PassDuration,
		m.QuoteFailures,
		m.AlertOutcomes,
		m.GateDecisions,
		m.BreakerOpen,
		m.TriggerEvents,
		m.PublishedEvents,
		m.NameCacheRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
