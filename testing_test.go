package asyncredis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pior/asyncredis/internal/testutils"
	"github.com/pior/asyncredis/resp"
	"github.com/stretchr/testify/require"
)

// mockDialer hands out mock transports and remembers them with their handlers,
// in creation order.
type mockDialer struct {
	transports []*testutils.TransportMock
	handlers   []TransportHandler
}

func (d *mockDialer) NewTransport(loop EventLoop, handler TransportHandler) Transport {
	m := testutils.NewTransportMock()
	d.transports = append(d.transports, m)
	d.handlers = append(d.handlers, handler)
	return m
}

// conn returns the handler of the i-th transport, the connection it drives.
func (d *mockDialer) conn(i int) *Connection {
	return d.handlers[i].(*Connection)
}

// poolRecorder is a Pool recording releases and discards. Lease is not supported.
type poolRecorder struct {
	released  []*Connection
	discarded []*Connection
}

func (p *poolRecorder) Lease(ctx context.Context) (*Connection, error) {
	panic("poolRecorder: Lease not supported")
}

func (p *poolRecorder) Release(conn *Connection) {
	if conn.HasPending() {
		panic("asyncredis: released connection has a pending command")
	}
	p.released = append(p.released, conn)
}

func (p *poolRecorder) Discard(conn *Connection) {
	p.discarded = append(p.discarded, conn)
}

func (p *poolRecorder) AcquireAllIdle() []*Connection { return nil }
func (p *poolRecorder) Close()                        {}
func (p *poolRecorder) Stats() PoolStats              { return PoolStats{} }

// newTestConnection returns a connecting connection over a mock transport.
func newTestConnection(t testing.TB) (*Connection, *testutils.TransportMock, *poolRecorder) {
	t.Helper()
	pool := &poolRecorder{}
	transport := testutils.NewTransportMock()
	conn := newConnection(1, "127.0.0.1:6379", pool)
	conn.connect(context.Background(), transport)
	return conn, transport, pool
}

// outcome is one callback invocation.
type outcome struct {
	reply resp.Reply
	ok    bool
}

// recorder collects callback invocations. Safe from any goroutine.
type recorder struct {
	mu       sync.Mutex
	outcomes []outcome
	notify   chan outcome
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan outcome, 1024)}
}

func (r *recorder) callback() Callback {
	return func(reply resp.Reply, ok bool) {
		r.mu.Lock()
		r.outcomes = append(r.outcomes, outcome{reply, ok})
		r.mu.Unlock()
		r.notify <- outcome{reply, ok}
	}
}

func (r *recorder) all() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.outcomes...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// single asserts exactly one callback invocation and returns it.
func (r *recorder) single(t testing.TB) outcome {
	t.Helper()
	all := r.all()
	require.Len(t, all, 1, "callback must be invoked exactly once")
	return all[0]
}

// wait blocks until the next callback invocation.
func (r *recorder) wait(t testing.TB) outcome {
	t.Helper()
	select {
	case o := <-r.notify:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
		return outcome{}
	}
}

// newInlineClient creates a client on an InlineLoop over mock transports.
func newInlineClient(t testing.TB, config Config) (*Client, *mockDialer) {
	t.Helper()
	dialer := &mockDialer{}
	config.Loop = InlineLoop{}
	config.Dialer = dialer

	client, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, dialer
}

func frame(t testing.TB, name string, args ...string) string {
	t.Helper()
	f, err := resp.EncodeCommand(name, resp.Args(args...)...)
	require.NoError(t, err)
	return string(f)
}
