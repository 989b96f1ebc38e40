package promexporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BenchMetrics holds the metrics of a load run driven by the CLI.
type BenchMetrics struct {
	opsTotal *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	opsRate  prometheus.Gauge
	active   prometheus.Gauge
	runs     *prometheus.CounterVec
}

// NewBenchMetrics creates and registers the bench metrics.
func NewBenchMetrics(registry prometheus.Registerer) *BenchMetrics {
	m := &BenchMetrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncredis_bench_operations_total",
				Help: "Total number of bench operations",
			},
			[]string{"command", "status"}, // success, failed
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncredis_bench_latency_seconds",
				Help:    "Time from Invoke to callback",
				Buckets: prometheus.ExponentialBuckets(50e-6, 2, 16),
			},
			[]string{"command"},
		),
		opsRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "asyncredis_bench_operations_per_second",
				Help: "Operations per second of the last run",
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "asyncredis_bench_active",
				Help: "Whether a run is in progress (0=no, 1=yes)",
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncredis_bench_runs_total",
				Help: "Total number of runs",
			},
			[]string{"status"}, // success, failed
		),
	}

	registry.MustRegister(m.opsTotal, m.latency, m.opsRate, m.active, m.runs)
	return m
}

// RecordOperation records the outcome and latency of one command.
func (m *BenchMetrics) RecordOperation(command string, success bool, latency time.Duration) {
	m.opsTotal.WithLabelValues(command, status(success)).Inc()
	m.latency.WithLabelValues(command).Observe(latency.Seconds())
}

// SetActive marks a run as started or finished.
func (m *BenchMetrics) SetActive(active bool) {
	if active {
		m.active.Set(1)
	} else {
		m.active.Set(0)
	}
}

// RecordRun records a completed run and its throughput.
func (m *BenchMetrics) RecordRun(success bool, opsPerSecond float64) {
	m.runs.WithLabelValues(status(success)).Inc()
	m.opsRate.Set(opsPerSecond)
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
