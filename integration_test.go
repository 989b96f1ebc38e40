package asyncredis

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pior/asyncredis/internal/testutils"
	"github.com/pior/asyncredis/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIntegrationClient starts a RESP server backed by a Store and a client
// with its own event loop and TCP transports.
func newIntegrationClient(t *testing.T, config Config) (*Client, *testutils.RESPServer, *testutils.Store) {
	t.Helper()
	store := testutils.NewStore()
	server := testutils.NewRESPServer(t, store.Handle)

	config.Servers = NewStaticServers(server.Addr())
	client, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, server, store
}

func TestIntegration_SetGet(t *testing.T) {
	client, _, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.Set("greeting", []byte("hello world"), rec.callback())
	o := rec.wait(t)
	require.True(t, o.ok)
	require.Equal(t, resp.Reply{Kind: resp.KindSimple, Str: "OK"}, o.reply)

	client.Get("greeting", rec.callback())
	o = rec.wait(t)
	require.True(t, o.ok)
	require.Equal(t, "hello world", o.reply.Str)

	client.Get("missing", rec.callback())
	o = rec.wait(t)
	require.True(t, o.ok)
	require.Equal(t, resp.KindNull, o.reply.Kind)
}

func TestIntegration_ChainedCallbacks(t *testing.T) {
	client, _, store := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.Set("k", []byte("v"), func(reply resp.Reply, ok bool) {
		client.Incr("n", func(reply resp.Reply, ok bool) {
			client.Get("k", rec.callback())
		})
	})

	o := rec.wait(t)
	require.Equal(t, "v", o.reply.Str)
	require.Equal(t, []string{"SET", "INCR", "GET"}, store.Calls())
	require.Equal(t, uint64(3), client.AllPoolStats()[0].PoolStats.AcquireCount)
	require.Equal(t, uint64(1), client.AllPoolStats()[0].PoolStats.CreatedConns, "each callback reuses the connection")
}

func TestIntegration_Hashes(t *testing.T) {
	client, _, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.HMSet("user:1", map[string][]byte{"name": []byte("alice"), "age": []byte("42")}, rec.callback())
	require.True(t, rec.wait(t).ok)

	client.HMGet("user:1", []string{"name", "email", "age"}, rec.callback())
	o := rec.wait(t)
	require.True(t, o.ok)
	require.Equal(t, map[string]resp.Value{
		"name":  {Data: []byte("alice")},
		"email": {Null: true},
		"age":   {Data: []byte("42")},
	}, o.reply.Map)

	client.HExists("user:1", "name", rec.callback())
	require.Equal(t, int64(1), rec.wait(t).reply.Int)
}

func TestIntegration_MultiKey(t *testing.T) {
	client, _, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.MSet(map[string][]byte{"a": []byte("1"), "b": []byte("2")}, rec.callback())
	require.True(t, rec.wait(t).ok)

	client.MGet([]string{"a", "nope", "b"}, rec.callback())
	o := rec.wait(t)
	require.Equal(t, map[string]resp.Value{
		"a":    {Data: []byte("1")},
		"nope": {Null: true},
		"b":    {Data: []byte("2")},
	}, o.reply.Map)

	client.Del([]string{"a", "b", "nope"}, rec.callback())
	require.Equal(t, int64(2), rec.wait(t).reply.Int)
}

func TestIntegration_Sets(t *testing.T) {
	client, _, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.SAdd("tags", []string{"go", "redis", "go"}, rec.callback())
	require.Equal(t, int64(2), rec.wait(t).reply.Int)

	client.SMembers("tags", rec.callback())
	require.Equal(t, []string{"go", "redis"}, rec.wait(t).reply.Strings())
}

func TestIntegration_ErrorReply(t *testing.T) {
	client, server, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.Invoke("NOSUCHCOMMAND", resp.Args("x"), rec.callback())
	o := rec.wait(t)
	require.False(t, o.ok)
	require.Equal(t, "ERR unknown command 'nosuchcommand'", o.reply.Str)

	var replyErr *resp.ReplyError
	require.ErrorAs(t, o.reply.Err, &replyErr)
	require.Equal(t, "ERR", replyErr.Prefix())

	// The connection survives an error reply.
	client.Invoke("PING", nil, rec.callback())
	require.Equal(t, "PONG", rec.wait(t).reply.Str)
	require.Equal(t, 1, server.ConnectionCount())
}

func TestIntegration_Select(t *testing.T) {
	client, _, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	client.Select(1, rec.callback())
	require.True(t, rec.wait(t).ok)

	client.Invoke("SELECT", resp.Args("one"), rec.callback())
	require.False(t, rec.wait(t).ok)
}

func TestIntegration_ConnectRefusedTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client, err := NewClient(Config{Servers: NewStaticServers(addr), ConnectTimeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	rec := newRecorder()
	client.Get("key", rec.callback())

	o := rec.wait(t)
	require.False(t, o.ok)
	require.Equal(t, resp.TextTimeout, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, resp.ErrConnectTimeout)
	require.Equal(t, uint64(1), client.Stats().Timeouts)

	require.Eventually(t, func() bool {
		return client.AllPoolStats()[0].PoolStats.TotalConns == 0
	}, time.Second, 5*time.Millisecond)
}

func TestIntegration_ServerClosesConnection(t *testing.T) {
	received := make(chan struct{}, 1)
	server := testutils.NewRESPServer(t, func(args []string) resp.Reply {
		received <- struct{}{}
		return resp.Reply{} // never answers
	})

	client, err := NewClient(Config{Servers: NewStaticServers(server.Addr())})
	require.NoError(t, err)
	defer client.Close()

	rec := newRecorder()
	client.Get("key", rec.callback())

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("command never reached the server")
	}
	server.CloseConnections()

	o := rec.wait(t)
	require.False(t, o.ok)
	require.Equal(t, resp.TextConnectionLost, o.reply.Str)
	require.ErrorIs(t, o.reply.Err, resp.ErrConnectionLost)
	require.Equal(t, uint64(1), client.Stats().LostReplies)
}

func TestIntegration_CloseFailsPending(t *testing.T) {
	received := make(chan struct{}, 1)
	server := testutils.NewRESPServer(t, func(args []string) resp.Reply {
		received <- struct{}{}
		return resp.Reply{}
	})

	client, err := NewClient(Config{Servers: NewStaticServers(server.Addr())})
	require.NoError(t, err)

	rec := newRecorder()
	client.Get("key", rec.callback())
	<-received

	client.Close()
	require.Equal(t, resp.TextConnectionLost, rec.single(t).reply.Str)

	client.Get("key", rec.callback())
	require.ErrorIs(t, rec.all()[1].reply.Err, ErrClientClosed)
}

func TestIntegration_ConcurrentIncr(t *testing.T) {
	client, server, _ := newIntegrationClient(t, Config{})
	rec := newRecorder()

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				client.Incr("counter", rec.callback())
			}
		}()
	}
	wg.Wait()

	for range workers * perWorker {
		require.True(t, rec.wait(t).ok)
	}

	client.Get("counter", rec.callback())
	require.Equal(t, strconv.Itoa(workers*perWorker), rec.wait(t).reply.Str)

	stats := client.Stats()
	assert.Equal(t, uint64(workers*perWorker+1), stats.Commands)
	assert.Equal(t, uint64(workers*perWorker+1), stats.Replies)
	assert.LessOrEqual(t, server.ConnectionCount(), workers*perWorker)
	assert.Equal(t, client.AllPoolStats()[0].PoolStats.TotalConns, stats.IdleConns, "every connection is back in the pool")
}

func TestIntegration_IdleConnectionsReaped(t *testing.T) {
	client, server, _ := newIntegrationClient(t, Config{
		MaxConnIdleTime:     100 * time.Millisecond,
		HealthCheckInterval: 20 * time.Millisecond,
	})
	rec := newRecorder()

	client.Invoke("PING", nil, rec.callback())
	require.True(t, rec.wait(t).ok)
	require.Equal(t, "Idle connection: 1", client.StatsLine())

	require.Eventually(t, func() bool {
		return client.Stats().IdleConns == 0 && server.ConnectionCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// A new connection is opened on demand.
	client.Invoke("PING", nil, rec.callback())
	require.Equal(t, "PONG", rec.wait(t).reply.Str)
	require.Equal(t, uint64(2), client.AllPoolStats()[0].PoolStats.CreatedConns)
}

func TestIntegration_PuddlePool(t *testing.T) {
	client, server, _ := newIntegrationClient(t, Config{Pool: NewPuddlePool, MaxSize: 2})
	rec := newRecorder()

	for i := range 5 {
		client.Set("k"+strconv.Itoa(i), []byte("v"), rec.callback())
		require.True(t, rec.wait(t).ok)
	}
	require.Equal(t, 1, server.ConnectionCount(), "sequential commands share one connection")

	// A burst beyond MaxSize fails fast instead of waiting.
	const burst = 10
	for range burst {
		client.Incr("n", rec.callback())
	}
	succeeded := 0
	for range burst {
		o := rec.wait(t)
		if o.ok {
			succeeded++
			continue
		}
		require.ErrorIs(t, o.reply.Err, ErrPoolExhausted)
	}
	require.GreaterOrEqual(t, succeeded, 1)

	stats := client.AllPoolStats()[0].PoolStats
	assert.LessOrEqual(t, stats.CreatedConns, uint64(2))
	assert.Equal(t, uint64(burst-succeeded), stats.AcquireErrors)
}
