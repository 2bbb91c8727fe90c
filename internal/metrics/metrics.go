// Package metrics holds the HTTP-surface Prometheus instrumentation for the
// tile server: per-route request duration and request counts, surfaced at
// /metrics alongside the package-level counters each internal package
// registers for itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the HTTP-layer instrumentation, registered once at process
// startup. Per-component counters (source cache hits, tile cache evictions,
// single-flight collapses) live as package-level vars in their own packages
// and are scraped from the same default registry.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec // labels: route, status
	RequestsTotal   *prometheus.CounterVec   // labels: route, status
}

// NewMetrics creates and registers m with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodmap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "status"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodmap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	prometheus.MustRegister(m.RequestDuration, m.RequestsTotal)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when multiple tests construct a server.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "floodmap", Subsystem: "http", Name: "request_duration_seconds"}, []string{"route", "status"}),
		RequestsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodmap", Subsystem: "http", Name: "requests_total"}, []string{"route", "status"}),
	}
}
