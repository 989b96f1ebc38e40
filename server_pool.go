package asyncredis

import (
	"context"

	"github.com/pior/asyncredis/resp"
	"github.com/sony/gobreaker/v2"
)

// serverPool wraps a pool and an optional circuit breaker with its server address.
type serverPool struct {
	addr           string
	pool           Pool
	circuitBreaker CircuitBreaker // nil if not configured
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *serverPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// execute leases a connection and sends the frame on it. The command is
// wrapped with the server's circuit breaker: an open breaker fails it at once.
// Runs on the event loop.
func (sp *serverPool) execute(ctx context.Context, frame []byte, fields []string, cb Callback) {
	if sp.circuitBreaker == nil {
		sp.executeDirect(ctx, frame, fields, cb)
		return
	}

	done, err := sp.circuitBreaker.Allow()
	if err != nil {
		cb(resp.Failure(err.Error(), err), false)
		return
	}

	sp.executeDirect(ctx, frame, fields, func(reply resp.Reply, ok bool) {
		done(serverHealthy(reply))
		cb(reply, ok)
	})
}

// executeDirect performs the lease and send without circuit breaker.
func (sp *serverPool) executeDirect(ctx context.Context, frame []byte, fields []string, cb Callback) {
	conn, err := sp.pool.Lease(ctx)
	if err != nil {
		plog.Errorf("lease from pool %s failed: %v", sp.addr, err)
		cb(resp.Failure(err.Error(), err), false)
		return
	}

	conn.Send(frame, cb, fields...)
}
