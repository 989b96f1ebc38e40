package asyncredis

import (
	"context"
	"errors"
)

var ErrPoolClosed = errors.New("asyncredis: pool closed")

// Pool holds the connections of one server.
//
// A leased connection belongs to exactly one command until it is released:
// Lease removes the connection from the idle set before returning it.
// All methods except Stats are called from the event loop only.
type Pool interface {
	// Lease returns an idle connection, or a new one that is still connecting.
	Lease(ctx context.Context) (*Connection, error)

	// Release returns a connection to the idle set. Releasing a connection
	// with a pending command panics.
	Release(conn *Connection)

	// Discard forgets a closed connection, idle or leased.
	Discard(conn *Connection)

	// AcquireAllIdle leases every idle connection, for maintenance.
	AcquireAllIdle() []*Connection

	// Close closes every connection of the pool. Pending commands fail.
	Close()

	// Stats returns a snapshot of pool statistics. Safe from any goroutine.
	Stats() PoolStats
}

// PoolFactory creates a pool. The constructor starts a new connection.
// maxSize bounds the pool when the implementation supports it.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)

// idlePool keeps idle connections in a set keyed by connection id.
// It is unbounded: a lease with no idle connection always creates one.
type idlePool struct {
	constructor func(ctx context.Context) (*Connection, error)
	idle        map[uint64]*Connection
	live        map[uint64]*Connection
	closed      bool
	stats       *poolStatsCollector
}

// NewIdlePool creates the default pool. maxSize is ignored.
func NewIdlePool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	return &idlePool{
		constructor: constructor,
		idle:        make(map[uint64]*Connection),
		live:        make(map[uint64]*Connection),
		stats:       newPoolStatsCollector(),
	}, nil
}

func (p *idlePool) Lease(ctx context.Context) (*Connection, error) {
	if p.closed {
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}
	p.stats.recordAcquire()

	for id, conn := range p.idle {
		delete(p.idle, id)
		p.stats.recordAcquireFromIdle()
		return conn, nil
	}

	conn, err := p.constructor(ctx)
	if err != nil {
		p.stats.recordAcquireError()
		return nil, err
	}
	p.live[conn.ID()] = conn
	p.stats.recordCreate()
	return conn, nil
}

func (p *idlePool) Release(conn *Connection) {
	if conn.HasPending() {
		panic("asyncredis: released connection has a pending command")
	}
	if _, ok := p.live[conn.ID()]; !ok {
		return
	}
	if p.closed {
		conn.Close()
		return
	}
	if _, ok := p.idle[conn.ID()]; ok {
		return
	}

	p.idle[conn.ID()] = conn
	p.stats.recordRelease()
}

func (p *idlePool) Discard(conn *Connection) {
	id := conn.ID()
	if _, ok := p.live[id]; !ok {
		return
	}
	delete(p.live, id)

	_, idle := p.idle[id]
	delete(p.idle, id)
	p.stats.recordDestroy(idle)
}

func (p *idlePool) AcquireAllIdle() []*Connection {
	conns := make([]*Connection, 0, len(p.idle))
	for id, conn := range p.idle {
		delete(p.idle, id)
		p.stats.recordAcquireFromIdle()
		conns = append(conns, conn)
	}
	return conns
}

func (p *idlePool) Close() {
	if p.closed {
		return
	}
	p.closed = true

	for _, conn := range p.live {
		conn.Close()
	}
}

func (p *idlePool) Stats() PoolStats {
	return p.stats.snapshot()
}
