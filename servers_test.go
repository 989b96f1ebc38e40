package asyncredis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticServers_List(t *testing.T) {
	servers := NewStaticServers("server1:6379", "server2:6379", "server3:6379")

	list := servers.List()

	assert.Len(t, list, 3)
	assert.Equal(t, "server1:6379", list[0])
	assert.Equal(t, "server2:6379", list[1])
	assert.Equal(t, "server3:6379", list[2])
}

func TestStaticServers_EmptyList(t *testing.T) {
	assert.Empty(t, NewStaticServers().List())
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{"localhost", 6379, "localhost:6379"},
		{"10.0.0.1", 6380, "10.0.0.1:6380"},
		{"::1", 6379, "[::1]:6379"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, hostPort(tt.host, tt.port))
		})
	}
}
