package promexporter

import (
	"github.com/pior/asyncredis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Source provides the statistics exported by a Collector. *asyncredis.Client implements it.
type Source interface {
	Stats() asyncredis.ClientStats
	AllPoolStats() []asyncredis.ServerPoolStats
}

// Collector exports client, pool and circuit breaker statistics.
// Values are read from the source at scrape time.
type Collector struct {
	source Source

	commands  *prometheus.Desc
	outcomes  *prometheus.Desc
	idleConns *prometheus.Desc

	poolConnections *prometheus.Desc
	poolCreated     *prometheus.Desc
	poolDestroyed   *prometheus.Desc
	poolAcquires    *prometheus.Desc
	poolErrors      *prometheus.Desc

	circuitState    *prometheus.Desc
	circuitRequests *prometheus.Desc
	circuitFailures *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over source.
func NewCollector(source Source) *Collector {
	server := []string{"server"}
	return &Collector{
		source: source,

		commands: prometheus.NewDesc(
			"asyncredis_commands_total",
			"Total number of commands submitted",
			nil, nil,
		),
		outcomes: prometheus.NewDesc(
			"asyncredis_command_outcomes_total",
			"Total number of resolved commands by outcome",
			[]string{"outcome"}, // reply, error_reply, timeout, connection_lost, error
			nil,
		),
		idleConns: prometheus.NewDesc(
			"asyncredis_idle_connections",
			"Idle connections across all servers",
			nil, nil,
		),

		poolConnections: prometheus.NewDesc(
			"asyncredis_pool_connections",
			"Connection pool statistics",
			[]string{"server", "state"}, // total, active, idle
			nil,
		),
		poolCreated: prometheus.NewDesc(
			"asyncredis_pool_connections_created_total",
			"Total connections created",
			server, nil,
		),
		poolDestroyed: prometheus.NewDesc(
			"asyncredis_pool_connections_destroyed_total",
			"Total connections closed and removed from the pool",
			server, nil,
		),
		poolAcquires: prometheus.NewDesc(
			"asyncredis_pool_acquires_total",
			"Total connection leases",
			server, nil,
		),
		poolErrors: prometheus.NewDesc(
			"asyncredis_pool_acquire_errors_total",
			"Total failed connection leases",
			server, nil,
		),

		circuitState: prometheus.NewDesc(
			"asyncredis_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			server, nil,
		),
		circuitRequests: prometheus.NewDesc(
			"asyncredis_circuit_breaker_requests",
			"Number of requests tracked by circuit breaker",
			server, nil,
		),
		circuitFailures: prometheus.NewDesc(
			"asyncredis_circuit_breaker_failures",
			"Circuit breaker failure counts",
			[]string{"server", "type"}, // total, consecutive
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commands
	ch <- c.outcomes
	ch <- c.idleConns
	ch <- c.poolConnections
	ch <- c.poolCreated
	ch <- c.poolDestroyed
	ch <- c.poolAcquires
	ch <- c.poolErrors
	ch <- c.circuitState
	ch <- c.circuitRequests
	ch <- c.circuitFailures
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(stats.Commands))
	for outcome, n := range map[string]uint64{
		"reply":           stats.Replies,
		"error_reply":     stats.ErrorReplies,
		"timeout":         stats.Timeouts,
		"connection_lost": stats.LostReplies,
		"error":           stats.Errors,
	} {
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(n), outcome)
	}
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.IdleConns))

	for _, s := range c.source.AllPoolStats() {
		ps := s.PoolStats
		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.TotalConns), s.Addr, "total")
		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.ActiveConns), s.Addr, "active")
		ch <- prometheus.MustNewConstMetric(c.poolConnections, prometheus.GaugeValue, float64(ps.IdleConns), s.Addr, "idle")
		ch <- prometheus.MustNewConstMetric(c.poolCreated, prometheus.CounterValue, float64(ps.CreatedConns), s.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolDestroyed, prometheus.CounterValue, float64(ps.DestroyedConns), s.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolAcquires, prometheus.CounterValue, float64(ps.AcquireCount), s.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolErrors, prometheus.CounterValue, float64(ps.AcquireErrors), s.Addr)

		ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, stateValue(s.CircuitBreakerState), s.Addr)
		ch <- prometheus.MustNewConstMetric(c.circuitRequests, prometheus.GaugeValue, float64(s.CircuitBreakerCounts.Requests), s.Addr)
		ch <- prometheus.MustNewConstMetric(c.circuitFailures, prometheus.GaugeValue, float64(s.CircuitBreakerCounts.TotalFailures), s.Addr, "total")
		ch <- prometheus.MustNewConstMetric(c.circuitFailures, prometheus.GaugeValue, float64(s.CircuitBreakerCounts.ConsecutiveFailures), s.Addr, "consecutive")
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
