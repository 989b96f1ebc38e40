package asyncredis

import (
	"errors"
	"net"
	"strconv"
)

var ErrNoServers = errors.New("asyncredis: no servers available")

// Servers provides the list of server addresses commands are routed to.
type Servers interface {
	List() []string
}

// StaticServers is a fixed list of server addresses.
type StaticServers struct {
	addrs []string
}

func NewStaticServers(addrs ...string) *StaticServers {
	return &StaticServers{addrs: addrs}
}

func (s *StaticServers) List() []string {
	return s.addrs
}

// hostPort formats a host and port as a dialable address.
func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
