package asyncredis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pior/asyncredis/resp"
	"github.com/puzpuzpuz/xsync/v3"
)

// Defaults applied by NewClient.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 6379
	DefaultConnectTimeout = time.Second
)

var ErrClientClosed = errors.New("asyncredis: client closed")

// Config holds configuration for the client and its connection pools.
type Config struct {
	// Host and Port address the server when Servers is nil.
	// Defaults: "localhost" and 6379.
	Host string
	Port int

	// Servers lists the servers commands are routed to. Overrides Host and Port.
	Servers Servers

	// ConnectTimeout bounds the connect of a new connection. A command waiting
	// on a connection that fails to connect in time resolves with "timeout".
	// Default: 1s.
	ConnectTimeout time.Duration

	// MaxSize is the maximum number of connections per server, for pools that
	// are bounded (NewPuddlePool). The default pool ignores it.
	MaxSize int32

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are checked against MaxConnIdleTime.
	// Zero means MaxConnIdleTime/2.
	HealthCheckInterval time.Duration

	// Debug logs every chunk received by this client's connections at INFO
	// level. The package logger level and other clients are left unchanged.
	Debug bool

	// Loop runs all connection work. If nil, the client starts its own loop
	// with NewEventLoop and stops it on Close.
	Loop EventLoop

	// Dialer creates connection transports.
	// If nil, uses a NetDialer with ConnectTimeout.
	Dialer Dialer

	// Pool is the connection pool factory function.
	// If nil, uses NewIdlePool.
	Pool PoolFactory

	// SelectServer picks which server to use for a key.
	// If nil, uses DefaultServerSelector.
	SelectServer ServerSelector

	// NewCircuitBreaker creates a circuit breaker for a server.
	// Called once per server address when the pool is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) CircuitBreaker
}

// Client issues commands asynchronously over pooled connections.
//
// Every method is safe for concurrent use. Commands are handed to the event
// loop and their outcome is delivered to a Callback on the loop.
type Client struct {
	servers      []string
	selectServer ServerSelector

	loop    EventLoop
	ownLoop *Loop
	dialer  Dialer

	// Pools are created lazily on the loop and read by Stats from any goroutine.
	pools             *xsync.MapOf[string, *serverPool]
	poolFactory       PoolFactory
	maxSize           int32
	newCircuitBreaker func(serverAddr string) CircuitBreaker
	nextConnID        atomic.Uint64
	debug             bool

	maxConnIdleTime     time.Duration
	healthCheckInterval time.Duration
	stopHealthCheck     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	stats *clientStatsCollector
}

// NewClient creates a client. No connection is opened until the first command.
func NewClient(config Config) (*Client, error) {
	servers := config.Servers
	if servers == nil {
		host := config.Host
		if host == "" {
			host = DefaultHost
		}
		port := config.Port
		if port == 0 {
			port = DefaultPort
		}
		servers = NewStaticServers(hostPort(host, port))
	}

	serverList := servers.List()
	if len(serverList) == 0 {
		return nil, ErrNoServers
	}

	selectServer := config.SelectServer
	if selectServer == nil {
		selectServer = DefaultServerSelector
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = &NetDialer{Timeout: connectTimeout}
	}

	poolFactory := config.Pool
	if poolFactory == nil {
		poolFactory = NewIdlePool
	}

	healthCheckInterval := config.HealthCheckInterval
	if healthCheckInterval <= 0 {
		healthCheckInterval = config.MaxConnIdleTime / 2
	}

	client := &Client{
		servers:             append([]string(nil), serverList...),
		selectServer:        selectServer,
		loop:                config.Loop,
		dialer:              dialer,
		pools:               xsync.NewMapOf[string, *serverPool](),
		poolFactory:         poolFactory,
		maxSize:             config.MaxSize,
		newCircuitBreaker:   config.NewCircuitBreaker,
		debug:               config.Debug,
		maxConnIdleTime:     config.MaxConnIdleTime,
		healthCheckInterval: healthCheckInterval,
		stopHealthCheck:     make(chan struct{}),
		stats:               newClientStatsCollector(),
	}
	client.ctx, client.cancel = context.WithCancel(context.Background())

	if client.loop == nil {
		client.ownLoop = NewEventLoop()
		client.loop = client.ownLoop
	}

	if client.maxConnIdleTime > 0 && client.healthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Close closes every connection, failing the commands still pending, and
// stops the client's own loop. Commands issued after Close fail with
// ErrClientClosed. Close must not be called from a callback.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopHealthCheck)

	done := make(chan struct{})
	err := c.loop.Post(func() {
		c.pools.Range(func(_ string, sp *serverPool) bool {
			sp.pool.Close()
			return true
		})
		close(done)
	})
	if err == nil {
		<-done
	}

	c.cancel()
	if c.ownLoop != nil {
		c.ownLoop.Close()
	}
}

// Invoke sends a command: name followed by its arguments.
//
// cb is invoked exactly once, on the event loop, with the reply and its
// success flag. When the command is rejected before reaching the loop (empty
// name, closed client) cb is invoked on the calling goroutine.
// The arguments are encoded before Invoke returns and may be reused.
func (c *Client) Invoke(name string, args [][]byte, cb Callback) {
	c.InvokeFields(name, args, nil, cb)
}

// InvokeFields is Invoke for commands whose array reply is keyed by fields:
// the reply is delivered as a Map from fields[i] to element i.
func (c *Client) InvokeFields(name string, args [][]byte, fields []string, cb Callback) {
	if cb == nil {
		cb = func(resp.Reply, bool) {}
	}
	c.stats.recordCommand()
	cb = c.observe(cb)

	frame, err := resp.EncodeCommand(name, args...)
	if err != nil {
		cb(resp.Failure(err.Error(), err), false)
		return
	}

	if c.closed.Load() {
		cb(resp.Failure(ErrClientClosed.Error(), ErrClientClosed), false)
		return
	}

	key := name
	if len(args) > 0 {
		key = string(args[0])
	}

	err = c.loop.Post(func() {
		c.dispatch(key, frame, fields, cb)
	})
	if err != nil {
		cb(resp.Failure(ErrClientClosed.Error(), ErrClientClosed), false)
	}
}

// observe records the outcome of a command in the client stats.
func (c *Client) observe(cb Callback) Callback {
	return func(reply resp.Reply, ok bool) {
		c.stats.recordReply(reply)
		cb(reply, ok)
	}
}

// dispatch routes a command to its server. Runs on the event loop.
func (c *Client) dispatch(key string, frame []byte, fields []string, cb Callback) {
	sp, err := c.getPoolForKey(key)
	if err != nil {
		cb(resp.Failure(err.Error(), err), false)
		return
	}
	sp.execute(c.ctx, frame, fields, cb)
}

// selectServerForKey picks the server address for a given key.
func (c *Client) selectServerForKey(key string) string {
	if len(c.servers) == 1 {
		return c.servers[0]
	}
	return c.servers[c.selectServer(key, len(c.servers))]
}

// getPoolForKey returns the pool for the server that should handle this key.
func (c *Client) getPoolForKey(key string) (*serverPool, error) {
	return c.getOrCreatePool(c.selectServerForKey(key))
}

// getOrCreatePool gets or creates the pool of a server. Runs on the event loop,
// the only writer of the pools map.
func (c *Client) getOrCreatePool(addr string) (*serverPool, error) {
	if sp, ok := c.pools.Load(addr); ok {
		return sp, nil
	}

	sp, err := c.createPool(addr)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", addr, err)
	}
	c.pools.Store(addr, sp)
	return sp, nil
}

// createPool creates a new connection pool for a server.
func (c *Client) createPool(addr string) (*serverPool, error) {
	sp := &serverPool{addr: addr}

	constructor := func(ctx context.Context) (*Connection, error) {
		if c.closed.Load() {
			return nil, ErrClientClosed
		}
		conn := newConnection(c.nextConnID.Add(1), addr, sp.pool)
		conn.debug = c.debug
		conn.connect(ctx, c.dialer.NewTransport(c.loop, conn))
		return conn, nil
	}

	pool, err := c.poolFactory(constructor, c.maxSize)
	if err != nil {
		return nil, err
	}
	sp.pool = pool

	if c.newCircuitBreaker != nil {
		sp.circuitBreaker = c.newCircuitBreaker(addr)
	}
	return sp, nil
}

// healthCheckLoop periodically closes connections idle for too long.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			_ = c.loop.Post(c.checkAllPools)
		}
	}
}

// checkAllPools runs the idle check on all existing pools. Runs on the event loop.
func (c *Client) checkAllPools() {
	c.pools.Range(func(_ string, sp *serverPool) bool {
		c.checkPoolConnections(sp.pool)
		return true
	})
}

// checkPoolConnections closes the idle connections of a pool unused for longer
// than MaxConnIdleTime and returns the others.
func (c *Client) checkPoolConnections(pool Pool) {
	for _, conn := range pool.AcquireAllIdle() {
		if conn.IdleDuration() > c.maxConnIdleTime {
			plog.Debugf("closing connection %d to %s, idle for %s", conn.ID(), conn.Addr(), conn.IdleDuration())
			conn.Close()
			continue
		}
		pool.Release(conn)
	}
}

// Stats returns a snapshot of client statistics, with the idle connection
// count summed over all servers.
func (c *Client) Stats() ClientStats {
	stats := c.stats.snapshot()
	c.pools.Range(func(_ string, sp *serverPool) bool {
		stats.IdleConns += sp.pool.Stats().IdleConns
		return true
	})
	return stats
}

// StatsLine renders the idle connection count as a one-line status.
func (c *Client) StatsLine() string {
	return fmt.Sprintf("Idle connection: %d", c.Stats().IdleConns)
}

// AllPoolStats returns stats for all server pools created so far.
func (c *Client) AllPoolStats() []ServerPoolStats {
	stats := make([]ServerPoolStats, 0, c.pools.Size())
	c.pools.Range(func(_ string, sp *serverPool) bool {
		stats = append(stats, sp.Stats())
		return true
	})
	return stats
}
