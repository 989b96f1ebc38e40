package asyncredis

import (
	"github.com/pior/asyncredis/internal"
	"github.com/zeebo/xxh3"
)

// ServerSelector maps a command key to the position of its server in the
// client's server list. serverCount is at least 1 and the result must lie in
// [0, serverCount).
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector hashes the key with xxh3 and places it with jump
// consistent hashing. Growing the list from n to n+1 servers remaps about
// 1/(n+1) of the keys, all of them onto the new server.
func DefaultServerSelector(key string, serverCount int) int {
	return internal.JumpHash(xxh3.HashString(key), serverCount)
}

// staticSelector pins every key to one position.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}
