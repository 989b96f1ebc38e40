package asyncredis

import (
	"maps"
	"slices"
	"strconv"

	"github.com/pior/asyncredis/resp"
)

// Typed helpers over Invoke. Each one sends a single command and delivers its
// reply, unchanged, to cb. Any other command is available through Invoke.

// Get sends GET key. A missing key replies Null.
func (c *Client) Get(key string, cb Callback) {
	c.Invoke("GET", resp.Args(key), cb)
}

// Set sends SET key value.
func (c *Client) Set(key string, value []byte, cb Callback) {
	c.Invoke("SET", [][]byte{[]byte(key), value}, cb)
}

// Del sends DEL with the keys. The reply is the number of keys removed.
func (c *Client) Del(keys []string, cb Callback) {
	c.Invoke("DEL", resp.Args(keys...), cb)
}

// Incr sends INCR key. The reply is the new value.
func (c *Client) Incr(key string, cb Callback) {
	c.Invoke("INCR", resp.Args(key), cb)
}

// Select sends SELECT db. It only affects the connection that runs it, which
// goes back to the pool afterwards like any other.
func (c *Client) Select(db int, cb Callback) {
	c.Invoke("SELECT", resp.Args(strconv.Itoa(db)), cb)
}

// HExists sends HEXISTS key field. The reply is 1 or 0.
func (c *Client) HExists(key, field string, cb Callback) {
	c.Invoke("HEXISTS", resp.Args(key, field), cb)
}

// SAdd sends SADD key members... The reply is the number of members added.
func (c *Client) SAdd(key string, members []string, cb Callback) {
	c.Invoke("SADD", append(resp.Args(key), resp.Args(members...)...), cb)
}

// SMembers sends SMEMBERS key. The reply is an array.
func (c *Client) SMembers(key string, cb Callback) {
	c.Invoke("SMEMBERS", resp.Args(key), cb)
}

// HMSet sends HMSET key with the field/value pairs, fields in sorted order.
func (c *Client) HMSet(key string, values map[string][]byte, cb Callback) {
	args := make([][]byte, 0, 1+2*len(values))
	args = append(args, []byte(key))
	for _, field := range slices.Sorted(maps.Keys(values)) {
		args = append(args, []byte(field), values[field])
	}
	c.Invoke("HMSET", args, cb)
}

// HMGet sends HMGET key fields... The reply is a Map keyed by field,
// missing fields held as null values.
func (c *Client) HMGet(key string, fields []string, cb Callback) {
	c.InvokeFields("HMGET", append(resp.Args(key), resp.Args(fields...)...), fields, cb)
}

// MSet sends MSET with the key/value pairs, keys in sorted order.
// The command is routed by its first key.
func (c *Client) MSet(values map[string][]byte, cb Callback) {
	args := make([][]byte, 0, 2*len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		args = append(args, []byte(key), values[key])
	}
	c.Invoke("MSET", args, cb)
}

// MGet sends MGET keys... The reply is a Map keyed by key, missing keys held
// as null values. The command is routed by its first key.
func (c *Client) MGet(keys []string, cb Callback) {
	c.InvokeFields("MGET", resp.Args(keys...), keys, cb)
}
