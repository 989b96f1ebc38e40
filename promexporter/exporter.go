// Package promexporter exposes asyncredis client statistics to Prometheus.
package promexporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter manages Prometheus metrics export
type Exporter struct {
	registry *prometheus.Registry
	bench    *BenchMetrics
}

// NewExporter creates an exporter with its own registry holding the client
// collector, the bench metrics and the Go runtime collector.
func NewExporter(source Source) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
	)

	return &Exporter{
		registry: registry,
		bench:    NewBenchMetrics(registry),
	}
}

// Registry returns the registry, for registering more collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// BenchMetrics returns the bench metrics collector
func (e *Exporter) BenchMetrics() *BenchMetrics {
	return e.bench
}

// Handler returns an HTTP handler for the /metrics endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Mount registers the handler on mux at /metrics.
func (e *Exporter) Mount(mux *http.ServeMux) {
	mux.Handle("/metrics", e.Handler())
}
