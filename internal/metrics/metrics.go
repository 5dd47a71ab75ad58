package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. A single instance
// is constructed at startup and injected where needed.
type Metrics struct {
	registry *prometheus.Registry

	EmailsProcessed   *prometheus.CounterVec
	SignalFailures    *prometheus.CounterVec
	LinksRewritten    prometheus.Counter
	ProcessingSeconds prometheus.Histogram
}

// New creates and registers the gateway collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EmailsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_gateway_emails_processed_total",
			Help: "Emails processed by the gateway, labelled by terminal action.",
		}, []string{"action"}),
		SignalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_gateway_signal_failures_total",
			Help: "Soft signal failures absorbed by the pipeline, labelled by signal.",
		}, []string{"signal"}),
		LinksRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "email_gateway_links_rewritten_total",
			Help: "Links rewritten to tracking URLs.",
		}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "email_gateway_processing_seconds",
			Help:    "Wall time spent processing one email end to end.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.EmailsProcessed,
		m.SignalFailures,
		m.LinksRewritten,
		m.ProcessingSeconds,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
