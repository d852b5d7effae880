// Package metrics exposes prometheus collectors for the provenance layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared across services.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	assetsCreated  prometheus.Counter
	eventsCreated  prometheus.Counter
	bundlesStored  prometheus.Counter
	bundlesAnchor  prometheus.Counter
	emptyClaims    prometheus.Counter
	finaliseTiming prometheus.Histogram
}

// New registers and returns the collector set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		assetsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assets_created_total",
			Help: "Assets accepted and persisted.",
		}),
		eventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_created_total",
			Help: "Events accepted and persisted.",
		}),
		bundlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bundles_finalised_total",
			Help: "Bundles assembled and persisted.",
		}),
		bundlesAnchor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bundles_anchored_total",
			Help: "Bundles with a recorded ledger proof block.",
		}),
		emptyClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bundle_empty_claims_total",
			Help: "Finalisation ticks that claimed no entries.",
		}),
		finaliseTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bundle_finalise_duration_seconds",
			Help:    "End-to-end bundle finalisation duration.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}

	registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.assetsCreated, m.eventsCreated,
		m.bundlesStored, m.bundlesAnchor, m.emptyClaims, m.finaliseTiming,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as in flight.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// AssetCreated counts a persisted asset.
func (m *Metrics) AssetCreated() { m.assetsCreated.Inc() }

// EventCreated counts a persisted event.
func (m *Metrics) EventCreated() { m.eventsCreated.Inc() }

// BundleFinalised counts a persisted bundle.
func (m *Metrics) BundleFinalised() { m.bundlesStored.Inc() }

// BundleAnchored counts a recorded proof block.
func (m *Metrics) BundleAnchored() { m.bundlesAnchor.Inc() }

// EmptyClaim counts a finalisation tick with nothing to bundle.
func (m *Metrics) EmptyClaim() { m.emptyClaims.Inc() }

// ObserveFinalise records a finalisation duration.
func (m *Metrics) ObserveFinalise(d time.Duration) { m.finaliseTiming.Observe(d.Seconds()) }
