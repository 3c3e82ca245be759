// Package telemetry provides Prometheus metrics for the publish cycle.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the publisher's Prometheus metrics.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram

	// Request outcomes, labeled by terminal state
	RequestsTotal *prometheus.CounterVec

	// Per-resource outcomes
	ResourcesPublished prometheus.Counter
	ResourcesFailed    prometheus.Counter

	// Catalog bundle publications, labeled ok/error
	BundlesTotal *prometheus.CounterVec
}

// NewMetrics registers the publisher metrics on the given registerer.
// Tests pass a fresh registry; the application passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_cycles_total",
			Help: "Number of completed publish cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "publisher_cycle_duration_seconds",
			Help:    "Duration of publish cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_requests_total",
			Help: "Publish requests handled, by terminal state",
		}, []string{"state"}),
		ResourcesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_resources_published_total",
			Help: "Resources successfully published to the map server",
		}),
		ResourcesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "publisher_resources_failed_total",
			Help: "Resources that failed publication",
		}),
		BundlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_bundles_total",
			Help: "Catalog bundle publications, by result",
		}, []string{"result"}),
	}
}

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
