package asyncredis

import (
	"errors"
	"sync/atomic"

	"github.com/pior/asyncredis/resp"
)

// PoolStats contains statistics about a connection pool.
// All fields are safe for concurrent access.
//
// Fields are ordered largest to smallest for optimal memory layout.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total leases
	AcquireWaitCount  uint64 // Leases that had to wait for a connection (bounded pools)
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections discarded
	AcquireErrors     uint64 // Failed leases
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Live connections (active + idle)
	IdleConns   int32 // Connections in the idle set
	ActiveConns int32 // Connections leased to a command
	_           int32
}

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Counters: Commands, Replies, ErrorReplies, Timeouts, LostReplies, Errors
//   - Gauge: IdleConns
type ClientStats struct {
	Commands     uint64 // Commands submitted
	Replies      uint64 // Replies delivered with ok=true
	ErrorReplies uint64 // Error replies sent by the server
	Timeouts     uint64 // Commands whose connection never connected
	LostReplies  uint64 // Commands whose connection closed before the reply
	Errors       uint64 // Other local failures: protocol errors, open breaker, closed client

	IdleConns int32 // Idle connections across all servers
	_         int32
}

// poolStatsCollector provides internal methods for updating pool stats.
// Not exported - pools update their own stats.
type poolStatsCollector struct {
	stats *PoolStats
}

func newPoolStatsCollector() *poolStatsCollector {
	return &poolStatsCollector{
		stats: &PoolStats{},
	}
}

func (c *poolStatsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *poolStatsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

// recordCreate counts a new connection, leased right away.
func (c *poolStatsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedConns, 1)
	atomic.AddInt32(&c.stats.TotalConns, 1)
	atomic.AddInt32(&c.stats.ActiveConns, 1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	atomic.AddInt32(&c.stats.IdleConns, -1)
	atomic.AddInt32(&c.stats.ActiveConns, 1)
}

func (c *poolStatsCollector) recordRelease() {
	atomic.AddInt32(&c.stats.IdleConns, 1)
	atomic.AddInt32(&c.stats.ActiveConns, -1)
}

// recordDestroy counts a discarded connection, idle or leased.
func (c *poolStatsCollector) recordDestroy(idle bool) {
	atomic.AddUint64(&c.stats.DestroyedConns, 1)
	atomic.AddInt32(&c.stats.TotalConns, -1)
	if idle {
		atomic.AddInt32(&c.stats.IdleConns, -1)
	} else {
		atomic.AddInt32(&c.stats.ActiveConns, -1)
	}
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		TotalConns:        atomic.LoadInt32(&c.stats.TotalConns),
		IdleConns:         atomic.LoadInt32(&c.stats.IdleConns),
		ActiveConns:       atomic.LoadInt32(&c.stats.ActiveConns),
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedConns:      atomic.LoadUint64(&c.stats.CreatedConns),
		DestroyedConns:    atomic.LoadUint64(&c.stats.DestroyedConns),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordCommand() {
	atomic.AddUint64(&c.stats.Commands, 1)
}

// recordReply counts the outcome of a command by the kind of its reply.
func (c *clientStatsCollector) recordReply(reply resp.Reply) {
	if reply.OK() {
		atomic.AddUint64(&c.stats.Replies, 1)
		return
	}

	var replyErr *resp.ReplyError
	switch {
	case errors.As(reply.Err, &replyErr):
		atomic.AddUint64(&c.stats.ErrorReplies, 1)
	case errors.Is(reply.Err, resp.ErrConnectTimeout):
		atomic.AddUint64(&c.stats.Timeouts, 1)
	case errors.Is(reply.Err, resp.ErrConnectionLost):
		atomic.AddUint64(&c.stats.LostReplies, 1)
	default:
		atomic.AddUint64(&c.stats.Errors, 1)
	}
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Commands:     atomic.LoadUint64(&c.stats.Commands),
		Replies:      atomic.LoadUint64(&c.stats.Replies),
		ErrorReplies: atomic.LoadUint64(&c.stats.ErrorReplies),
		Timeouts:     atomic.LoadUint64(&c.stats.Timeouts),
		LostReplies:  atomic.LoadUint64(&c.stats.LostReplies),
		Errors:       atomic.LoadUint64(&c.stats.Errors),
	}
}
