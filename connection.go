package asyncredis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pior/asyncredis/internal/coarsetime"
	"github.com/pior/asyncredis/resp"
)

// Callback receives the outcome of a command: the reply and its success flag.
// ok is false for server error replies and for every failure raised locally.
type Callback func(reply resp.Reply, ok bool)

// ConnState is the lifecycle state of a Connection.
type ConnState uint8

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed // terminal
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", uint8(s))
	}
}

type pendingCommand struct {
	callback Callback
	fields   []string
}

// Connection carries at most one command at a time over one transport.
//
// It is driven entirely from the event loop: Send by the client, the On* methods
// by its transport. When the reply to the pending command is decoded, the
// connection returns itself to its pool before invoking the callback, so the
// callback may immediately issue a command reusing it.
type Connection struct {
	id        uint64
	addr      string
	pool      Pool
	transport Transport
	state     ConnState
	outbound  []byte // frame waiting for the connect
	decoder   resp.Decoder
	pending   *pendingCommand
	created   time.Time
	lastUsed  time.Time
	debug     bool // trace received chunks
}

func newConnection(id uint64, addr string, pool Pool) *Connection {
	now := coarsetime.Now()
	return &Connection{
		id:       id,
		addr:     addr,
		pool:     pool,
		created:  now,
		lastUsed: now,
	}
}

// connect attaches the transport and starts connecting.
func (c *Connection) connect(ctx context.Context, t Transport) {
	c.transport = t
	c.state = StateConnecting
	t.Connect(ctx, c.addr)
}

// ID returns the identifier of the connection, unique within a client.
func (c *Connection) ID() uint64 { return c.id }

// Addr returns the server address.
func (c *Connection) Addr() string { return c.addr }

// State returns the lifecycle state.
func (c *Connection) State() ConnState { return c.state }

// HasPending reports whether a command is awaiting its outcome.
func (c *Connection) HasPending() bool { return c.pending != nil }

// CreationTime returns when the connection was created.
func (c *Connection) CreationTime() time.Time { return c.created }

// LastUsed returns when the connection last completed a command, or its creation time.
func (c *Connection) LastUsed() time.Time { return c.lastUsed }

// IdleDuration returns the time elapsed since LastUsed.
func (c *Connection) IdleDuration() time.Duration {
	return coarsetime.Since(c.lastUsed)
}

// Send issues an encoded command. The callback is invoked exactly once.
//
// A connected connection transmits the frame right away, otherwise the frame
// is kept until the transport connects. Sending while a command is pending is
// a programming error and panics.
func (c *Connection) Send(frame []byte, cb Callback, fields ...string) {
	if c.pending != nil {
		panic("asyncredis: Send on a connection with a pending command")
	}
	c.pending = &pendingCommand{callback: cb, fields: fields}

	switch c.state {
	case StateConnected:
		c.transmit(frame)
	case StateClosed:
		c.outbound = frame
		c.resolve(net.ErrClosed)
	default:
		c.outbound = frame
	}
}

func (c *Connection) transmit(frame []byte) {
	if err := c.transport.Send(frame); err != nil {
		c.fail(fmt.Errorf("write: %w", err))
	}
}

// OnConnect transmits the frame buffered while connecting.
func (c *Connection) OnConnect() {
	if c.state == StateClosed {
		return
	}
	c.state = StateConnected
	plog.Debugf("connection %d to %s established", c.id, c.addr)

	if c.outbound != nil {
		frame := c.outbound
		c.outbound = nil
		c.transmit(frame)
	}
}

// OnReceive feeds a received chunk to the decoder and completes the pending
// command once its reply is decoded.
func (c *Connection) OnReceive(chunk []byte) {
	if c.state == StateClosed {
		return
	}
	if c.debug {
		plog.Infof("connection %d received %q", c.id, chunk)
	}

	if c.pending == nil {
		plog.Warningf("connection %d to %s: %d bytes received with no command pending, closing", c.id, c.addr, len(chunk))
		c.decoder.Reset()
		c.Close()
		return
	}

	reply, ready := c.decoder.Feed(chunk)
	if !ready {
		return
	}
	if n := c.decoder.Discarded(); n > 0 {
		plog.Warningf("connection %d to %s: discarded %d bytes trailing the reply", c.id, c.addr, n)
	}
	var perr *resp.ProtocolError
	if errors.As(reply.Err, &perr) {
		plog.Warningf("connection %d to %s: %v", c.id, c.addr, perr)
	}

	c.complete(reply)
}

// complete hands the connection back to its pool, then delivers the reply.
func (c *Connection) complete(reply resp.Reply) {
	pc := c.pending
	c.pending = nil
	c.decoder.Reset()
	c.lastUsed = coarsetime.Now()

	reply = reply.Named(pc.fields)
	c.pool.Release(c)
	pc.callback(reply, reply.OK())
}

// OnError closes the connection, resolving the pending command as failed.
func (c *Connection) OnError(err error) {
	if c.state == StateClosed {
		return
	}
	c.fail(err)
}

// OnClose resolves the pending command as failed, or discards the idle connection.
func (c *Connection) OnClose() {
	if c.state == StateClosed {
		return
	}
	plog.Debugf("connection %d to %s closed by peer", c.id, c.addr)
	c.terminate(nil)
}

// Close closes the transport and terminates the connection. A pending command
// is resolved as failed before Close returns.
func (c *Connection) Close() {
	if c.state == StateClosed {
		return
	}
	c.terminate(nil)
}

func (c *Connection) fail(err error) {
	plog.Errorf("connection %d to %s: %v", c.id, c.addr, err)
	c.terminate(err)
}

func (c *Connection) terminate(cause error) {
	c.state = StateClosed
	c.decoder.Reset()
	if c.transport != nil {
		_ = c.transport.Close()
	}

	c.pool.Discard(c)
	if c.pending != nil {
		c.resolve(cause)
	}
}

// resolve fails the pending command. A frame still buffered was never
// transmitted: the command timed out waiting for the connect. Otherwise the
// connection was lost before the reply.
func (c *Connection) resolve(cause error) {
	pc := c.pending
	c.pending = nil

	var reply resp.Reply
	if c.outbound != nil {
		c.outbound = nil
		reply = resp.Failure(resp.TextTimeout, &resp.ConnectionError{Op: "connect", Err: resp.ErrConnectTimeout, Cause: cause})
	} else {
		reply = resp.Failure(resp.TextConnectionLost, &resp.ConnectionError{Op: "reply", Err: resp.ErrConnectionLost, Cause: cause})
	}
	pc.callback(reply, false)
}
