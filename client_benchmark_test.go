package asyncredis

import (
	"context"
	"testing"

	"github.com/pior/asyncredis/resp"
)

// discardTransport accepts every frame and never reports anything.
type discardTransport struct{}

func (discardTransport) Connect(context.Context, string) {}
func (discardTransport) Send([]byte) error               { return nil }
func (discardTransport) Close() error                    { return nil }

type benchDialer struct {
	conns []*Connection
}

func (d *benchDialer) NewTransport(loop EventLoop, handler TransportHandler) Transport {
	d.conns = append(d.conns, handler.(*Connection))
	return discardTransport{}
}

// benchmarkCommand measures a full command cycle on one warm connection:
// encode, lease, send, decode the reply, release and callback.
func benchmarkCommand(b *testing.B, reply string, issue func(client *Client, cb Callback)) {
	dialer := &benchDialer{}
	client, err := NewClient(Config{Loop: InlineLoop{}, Dialer: dialer})
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()

	cb := func(resp.Reply, bool) {}
	chunk := []byte(reply)

	issue(client, cb)
	conn := dialer.conns[0]
	conn.OnConnect()
	conn.OnReceive(chunk)

	b.ReportAllocs()
	for b.Loop() {
		issue(client, cb)
		conn.OnReceive(chunk)
	}

	if len(dialer.conns) != 1 {
		b.Fatalf("expected one connection, got %d", len(dialer.conns))
	}
}

func BenchmarkClient_Get(b *testing.B) {
	benchmarkCommand(b, "$5\r\nhello\r\n", func(client *Client, cb Callback) {
		client.Get("testkey", cb)
	})
}

func BenchmarkClient_Get_Miss(b *testing.B) {
	benchmarkCommand(b, "$-1\r\n", func(client *Client, cb Callback) {
		client.Get("testkey", cb)
	})
}

func BenchmarkClient_Set(b *testing.B) {
	value := []byte("value")
	benchmarkCommand(b, "+OK\r\n", func(client *Client, cb Callback) {
		client.Set("key", value, cb)
	})
}

func BenchmarkClient_Set_LargeValue(b *testing.B) {
	value := make([]byte, 10240)
	benchmarkCommand(b, "+OK\r\n", func(client *Client, cb Callback) {
		client.Set("key", value, cb)
	})
}

func BenchmarkClient_Incr(b *testing.B) {
	benchmarkCommand(b, ":42\r\n", func(client *Client, cb Callback) {
		client.Incr("counter", cb)
	})
}

func BenchmarkClient_HMGet(b *testing.B) {
	fields := []string{"name", "email", "phone"}
	benchmarkCommand(b, "*3\r\n$5\r\nalice\r\n$17\r\nalice@example.com\r\n$-1\r\n", func(client *Client, cb Callback) {
		client.HMGet("user:1", fields, cb)
	})
}

func BenchmarkClient_ErrorReply(b *testing.B) {
	benchmarkCommand(b, "-ERR value is not an integer or out of range\r\n", func(client *Client, cb Callback) {
		client.Incr("name", cb)
	})
}
