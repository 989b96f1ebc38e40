package asyncredis

import (
	"errors"
	"testing"

	"github.com/pior/asyncredis/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var getFrame = []byte("*2\r\n$3\r\nGET\r\n$4\r\nkey1\r\n")

func TestConnection_SendBeforeConnectBuffersFrame(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	rec := newRecorder()

	require.Equal(t, StateConnecting, conn.State())
	require.Equal(t, "127.0.0.1:6379", transport.Addr)

	conn.Send(getFrame, rec.callback())
	require.Empty(t, transport.Frames(), "nothing is sent before the connect")
	require.True(t, conn.HasPending())

	conn.OnConnect()
	require.Equal(t, StateConnected, conn.State())
	require.Equal(t, [][]byte{getFrame}, transport.Frames())

	// A second connect event never sends the frame twice.
	conn.OnConnect()
	require.Len(t, transport.Frames(), 1)
	require.Zero(t, rec.count())
}

func TestConnection_SendWhenConnectedTransmits(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	conn.OnConnect()

	conn.Send(getFrame, newRecorder().callback())
	require.Equal(t, string(getFrame), transport.GetWrittenRequest())
}

func TestConnection_ReplyCompletesCommand(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, rec.callback())
	conn.OnReceive([]byte("$4\r\nval1\r\n"))

	o := rec.single(t)
	require.True(t, o.ok)
	require.Equal(t, resp.Reply{Kind: resp.KindBulk, Str: "val1"}, o.reply)
	require.False(t, conn.HasPending())
	require.Equal(t, []*Connection{conn}, pool.released)
	require.Empty(t, pool.discarded)
}

func TestConnection_ReleasedBeforeCallback(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	conn.OnConnect()

	called := false
	conn.Send(getFrame, func(reply resp.Reply, ok bool) {
		called = true
		assert.Equal(t, []*Connection{conn}, pool.released, "released before the callback runs")
		assert.False(t, conn.HasPending())
	})
	conn.OnReceive([]byte("$-1\r\n"))
	require.True(t, called)
}

func TestConnection_CallbackReusesConnection(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, func(reply resp.Reply, ok bool) {
		conn.Send([]byte("*1\r\n$4\r\nPING\r\n"), rec.callback())
	})
	conn.OnReceive([]byte("+OK\r\n"))
	require.Len(t, transport.Frames(), 2)

	conn.OnReceive([]byte("+PONG\r\n"))
	require.Equal(t, "PONG", rec.single(t).reply.Str)
}

func TestConnection_FragmentedReply(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()
	conn.Send(getFrame, rec.callback())

	for _, chunk := range []string{"*2\r", "\n$3\r\nfo", "o\r\n$", "-1", "\r\n"} {
		require.Zero(t, rec.count(), "completed before %q", chunk)
		conn.OnReceive([]byte(chunk))
	}

	o := rec.single(t)
	require.True(t, o.ok)
	require.Equal(t, resp.KindArray, o.reply.Kind)
	require.Equal(t, []resp.Value{{Data: []byte("foo")}, {Null: true}}, o.reply.Array)
	require.Len(t, pool.released, 1)
}

func TestConnection_FieldsMapReply(t *testing.T) {
	conn, _, _ := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, rec.callback(), "a", "b")
	conn.OnReceive([]byte("*2\r\n$2\r\nv1\r\n$-1\r\n"))

	o := rec.single(t)
	require.Equal(t, resp.KindMap, o.reply.Kind)
	require.Equal(t, map[string]resp.Value{
		"a": {Data: []byte("v1")},
		"b": {Null: true},
	}, o.reply.Map)
}

func TestConnection_ErrorReply(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, rec.callback())
	conn.OnReceive([]byte("-WRONGTYPE Operation against a key holding the wrong kind of value\r\n"))

	o := rec.single(t)
	require.False(t, o.ok)
	require.Equal(t, "WRONGTYPE Operation against a key holding the wrong kind of value", o.reply.Str)

	var replyErr *resp.ReplyError
	require.ErrorAs(t, o.reply.Err, &replyErr)
	require.Equal(t, "WRONGTYPE", replyErr.Prefix())

	// The server answered: the connection is healthy.
	require.Equal(t, []*Connection{conn}, pool.released)
	require.Equal(t, StateConnected, conn.State())
}

func TestConnection_ProtocolErrorKeepsConnection(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, rec.callback())
	conn.OnReceive([]byte("!bogus\r\n"))

	o := rec.single(t)
	require.False(t, o.ok)
	var perr *resp.ProtocolError
	require.ErrorAs(t, o.reply.Err, &perr)
	require.Len(t, pool.released, 1)

	// The next command on the same connection decodes normally.
	next := newRecorder()
	conn.Send(getFrame, next.callback())
	conn.OnReceive([]byte(":42\r\n"))
	require.Equal(t, outcome{resp.Reply{Kind: resp.KindInteger, Int: 42}, true}, next.single(t))
}

func TestConnection_CloseBeforeConnectTimesOut(t *testing.T) {
	conn, transport, pool := newTestConnection(t)
	rec := newRecorder()

	conn.Send(getFrame, rec.callback())
	conn.OnClose()
	conn.OnClose()
	conn.OnConnect()

	o := rec.single(t)
	require.False(t, o.ok)
	require.Equal(t, resp.TextTimeout, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, resp.ErrConnectTimeout)

	require.Equal(t, StateClosed, conn.State())
	require.Empty(t, transport.Frames(), "the buffered frame is never sent")
	require.Empty(t, pool.released, "a closed connection is never released")
	require.Equal(t, []*Connection{conn}, pool.discarded)
}

func TestConnection_ConnectErrorTimesOut(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	rec := newRecorder()
	dialErr := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

	conn.Send(getFrame, rec.callback())
	conn.OnError(dialErr)
	conn.OnClose()

	o := rec.single(t)
	require.Equal(t, resp.TextTimeout, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, resp.ErrConnectTimeout)
	require.ErrorIs(t, o.reply.Err, dialErr)

	var connErr *resp.ConnectionError
	require.ErrorAs(t, o.reply.Err, &connErr)
	require.Equal(t, "connect", connErr.Op)
	require.True(t, transport.Closed())
}

func TestConnection_CloseAfterSendLosesReply(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()

	conn.Send(getFrame, rec.callback())
	conn.OnReceive([]byte("$10\r\nhal")) // partial reply
	conn.OnClose()

	o := rec.single(t)
	require.False(t, o.ok)
	require.Equal(t, resp.TextConnectionLost, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, resp.ErrConnectionLost)
	require.Empty(t, pool.released)
	require.Len(t, pool.discarded, 1)

	// Bytes arriving after the close are ignored.
	conn.OnReceive([]byte("f-done\r\n"))
	require.Equal(t, 1, rec.count())
}

func TestConnection_WriteErrorLosesReply(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()
	transport.SendErr = errors.New("broken pipe")

	conn.Send(getFrame, rec.callback())

	o := rec.single(t)
	require.Equal(t, resp.TextConnectionLost, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, transport.SendErr)
	require.Equal(t, StateClosed, conn.State())
	require.True(t, transport.Closed())
}

func TestConnection_IdleCloseIsSilent(t *testing.T) {
	conn, _, pool := newTestConnection(t)
	conn.OnConnect()

	conn.OnClose()
	require.Equal(t, StateClosed, conn.State())
	require.Equal(t, []*Connection{conn}, pool.discarded)
}

func TestConnection_UnexpectedBytesCloseConnection(t *testing.T) {
	conn, transport, pool := newTestConnection(t)
	conn.OnConnect()

	conn.OnReceive([]byte("+surprise\r\n"))
	require.Equal(t, StateClosed, conn.State())
	require.True(t, transport.Closed())
	require.Equal(t, []*Connection{conn}, pool.discarded)
}

func TestConnection_CloseResolvesPending(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	rec := newRecorder()
	conn.OnConnect()
	conn.Send(getFrame, rec.callback())

	conn.Close()
	conn.Close()

	require.Equal(t, resp.TextConnectionLost, rec.single(t).reply.Str)
	require.True(t, transport.Closed())
}

func TestConnection_SendWithPendingPanics(t *testing.T) {
	conn, _, _ := newTestConnection(t)
	conn.Send(getFrame, newRecorder().callback())

	require.Panics(t, func() {
		conn.Send(getFrame, newRecorder().callback())
	})
}

func TestConnection_SendOnClosedConnectionFails(t *testing.T) {
	conn, transport, _ := newTestConnection(t)
	conn.Close()

	rec := newRecorder()
	conn.Send(getFrame, rec.callback())

	o := rec.single(t)
	require.False(t, o.ok)
	require.Equal(t, resp.TextTimeout, o.reply.Str)
	require.Empty(t, transport.Frames())
	require.False(t, conn.HasPending())
}

func TestConnState_String(t *testing.T) {
	tests := []struct {
		state    ConnState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateClosed, "closed"},
		{ConnState(9), "ConnState(9)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
