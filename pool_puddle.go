package asyncredis

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// ErrPoolExhausted is returned by a bounded pool when every connection is leased.
var ErrPoolExhausted = errors.New("asyncredis: pool exhausted")

// NewPuddlePool creates a connection pool bounded to maxSize connections.
//
// A lease never waits: when maxSize connections are leased it fails with
// ErrPoolExhausted. Waiting would block the event loop that delivers the
// releases.
func NewPuddlePool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	p := &puddlePool{
		leased: make(map[uint64]*puddle.Resource[*Connection]),
	}

	poolConfig := &puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err == nil {
				p.createdConns.Add(1)
			}
			return conn, err
		},
		// Runs on a puddle goroutine: only the goroutine-safe transport is touched.
		// The close event it triggers terminates the connection on the loop.
		Destructor: func(c *Connection) {
			p.destroyedConns.Add(1)
			if c.transport != nil {
				_ = c.transport.Close()
			}
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement our Pool interface.
// leased maps the connections handed out to their puddle resources.
type puddlePool struct {
	pool           *puddle.Pool[*Connection]
	leased         map[uint64]*puddle.Resource[*Connection]
	closed         bool
	createdConns   atomic.Int64
	destroyedConns atomic.Int64
	exhausted      atomic.Int64
}

func (p *puddlePool) Lease(ctx context.Context) (*Connection, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}

	for {
		// Leases run one at a time on the loop, so no construction is in flight
		// and Acquire only waits when every resource is acquired.
		if s := p.pool.Stat(); s.AcquiredResources() >= s.MaxResources() {
			p.exhausted.Add(1)
			return nil, ErrPoolExhausted
		}

		res, err := p.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, puddle.ErrClosedPool) {
				return nil, ErrPoolClosed
			}
			return nil, err
		}

		conn := res.Value()
		if conn.State() == StateClosed {
			// Closed while idle.
			res.Destroy()
			continue
		}

		p.leased[conn.ID()] = res
		return conn, nil
	}
}

func (p *puddlePool) Release(conn *Connection) {
	if conn.HasPending() {
		panic("asyncredis: released connection has a pending command")
	}
	res, ok := p.leased[conn.ID()]
	if !ok {
		return
	}
	delete(p.leased, conn.ID())

	if p.closed {
		conn.Close()
		res.Destroy()
		return
	}
	res.Release()
}

func (p *puddlePool) Discard(conn *Connection) {
	res, ok := p.leased[conn.ID()]
	if !ok {
		p.sweepClosedIdle()
		return
	}
	delete(p.leased, conn.ID())
	res.Destroy()
}

// sweepClosedIdle destroys the idle resources whose connection is closed.
// puddle cannot take one resource out of its idle list, so every idle
// resource is acquired and the open ones are released again.
func (p *puddlePool) sweepClosedIdle() {
	if p.closed {
		return
	}
	for _, res := range p.pool.AcquireAllIdle() {
		if res.Value().State() == StateClosed {
			res.Destroy()
			continue
		}
		res.Release()
	}
}

func (p *puddlePool) AcquireAllIdle() []*Connection {
	resources := p.pool.AcquireAllIdle()
	conns := make([]*Connection, 0, len(resources))
	for _, res := range resources {
		conn := res.Value()
		if conn.State() == StateClosed {
			res.Destroy()
			continue
		}
		p.leased[conn.ID()] = res
		conns = append(conns, conn)
	}
	return conns
}

// Close closes the leased connections, then lets puddle destroy the idle ones.
func (p *puddlePool) Close() {
	if p.closed {
		return
	}
	p.closed = true

	for _, res := range p.leased {
		res.Value().Close()
	}
	p.pool.Close()
}

// Stats returns a snapshot of pool statistics by converting puddle's stats to our format.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()), // Acquires that had to wait (pool was empty)
		CreatedConns:      uint64(p.createdConns.Load()),
		DestroyedConns:    uint64(p.destroyedConns.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount() + p.exhausted.Load()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
