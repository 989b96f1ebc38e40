package asyncredis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// TransportHandler receives the events of one transport. Every event is
// delivered on the event loop.
type TransportHandler interface {
	// OnConnect is called once the transport is ready to send.
	OnConnect()

	// OnError is called when connecting or reading fails. OnClose follows.
	OnError(err error)

	// OnReceive is called for every chunk of bytes read, in order.
	OnReceive(chunk []byte)

	// OnClose is called once the transport is closed, by either side.
	OnClose()
}

// Transport is a non-blocking byte stream to one server.
type Transport interface {
	// Connect starts connecting in the background. The outcome is reported to
	// the handler: OnConnect on success, OnError then OnClose on failure.
	Connect(ctx context.Context, addr string)

	// Send writes a frame. It must only be called after OnConnect.
	Send(frame []byte) error

	// Close closes the transport. Calling it more than once is a no-op.
	Close() error
}

// Dialer creates the transport of a new connection. The transport must deliver
// handler events through loop.
type Dialer interface {
	NewTransport(loop EventLoop, handler TransportHandler) Transport
}

// DefaultReadBufferSize is the read buffer of a NetDialer transport.
const DefaultReadBufferSize = 16 << 10

// NetDialer is the default Dialer. It opens TCP connections with a net.Dialer
// and runs one reader goroutine per connection, posting every event to the loop.
type NetDialer struct {
	// Timeout bounds the TCP connect. Zero means no limit.
	Timeout time.Duration

	// KeepAlive is passed to net.Dialer. Zero uses the net package default.
	KeepAlive time.Duration

	// ReadBufferSize is the size of the per-connection read buffer.
	// Zero means DefaultReadBufferSize.
	ReadBufferSize int
}

func (d *NetDialer) NewTransport(loop EventLoop, handler TransportHandler) Transport {
	size := d.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	return &netTransport{
		dialer:   net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive},
		loop:     loop,
		handler:  handler,
		readSize: size,
	}
}

type netTransport struct {
	dialer   net.Dialer
	loop     EventLoop
	handler  TransportHandler
	readSize int

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	closed bool
}

func (t *netTransport) Connect(ctx context.Context, addr string) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, addr)
}

func (t *netTransport) run(ctx context.Context, addr string) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.post(func() {
			t.handler.OnError(err)
			t.handler.OnClose()
		})
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		t.post(t.handler.OnClose)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.post(t.handler.OnConnect)
	t.read(conn)
}

func (t *netTransport) read(conn net.Conn) {
	buf := make([]byte, t.readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := bytes.Clone(buf[:n])
			t.post(func() { t.handler.OnReceive(chunk) })
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) || t.isClosed() {
			t.post(t.handler.OnClose)
		} else {
			t.post(func() {
				t.handler.OnError(err)
				t.handler.OnClose()
			})
		}
		return
	}
}

func (t *netTransport) post(fn func()) {
	if err := t.loop.Post(fn); err != nil {
		plog.Debugf("transport event dropped: %v", err)
	}
}

func (t *netTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *netTransport) Send(frame []byte) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()

	if closed || conn == nil {
		return net.ErrClosed
	}
	_, err := conn.Write(frame)
	return err
}

func (t *netTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
