package testutils

import (
	"net"
	"sync"
	"testing"

	"github.com/pior/asyncredis/resp"
)

// Handler answers one command. A zero Reply sends nothing back.
type Handler func(args []string) resp.Reply

// RESPServer is an in-process RESP server on 127.0.0.1, one goroutine per connection.
type RESPServer struct {
	ln      net.Listener
	handler Handler

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewRESPServer starts a server answering with handler. It is closed when the test ends.
func NewRESPServer(t testing.TB, handler Handler) *RESPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	s := &RESPServer{
		ln:      ln,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the address the server listens on.
func (s *RESPServer) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the server and closes every connection.
func (s *RESPServer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.CloseConnections()
	s.wg.Wait()
}

// CloseConnections closes the client connections, the listener keeps accepting.
func (s *RESPServer) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// ConnectionCount returns the number of open client connections.
func (s *RESPServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *RESPServer) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *RESPServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	var dec resp.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			cmd, ready := dec.Feed(buf[:n])
			if ready {
				reply := s.reply(cmd)
				if reply.Kind != 0 {
					if _, err := conn.Write(resp.AppendReply(nil, reply)); err != nil {
						return
					}
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *RESPServer) reply(cmd resp.Reply) resp.Reply {
	if cmd.Kind != resp.KindArray || len(cmd.Array) == 0 {
		return resp.Reply{Kind: resp.KindError, Str: "ERR Protocol error: expected a command array"}
	}
	return s.handler(cmd.Strings())
}
