package testutils

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pior/asyncredis/resp"
)

// Store is an in-memory Handler implementing the handful of commands the
// client helpers send. Databases selected with SELECT are shared.
type Store struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	calls   []string
}

func NewStore() *Store {
	return &Store{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
	}
}

// Calls returns the names of the commands handled so far.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Handle implements Handler.
func (s *Store) Handle(args []string) resp.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToUpper(args[0])
	args = args[1:]
	s.calls = append(s.calls, name)

	switch name {
	case "PING":
		return simple("PONG")

	case "SELECT":
		if len(args) != 1 {
			return arity(name)
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return errorReply("ERR invalid DB index")
		}
		return simple("OK")

	case "GET":
		if len(args) != 1 {
			return arity(name)
		}
		v, ok := s.strings[args[0]]
		if !ok {
			return resp.Reply{Kind: resp.KindNull}
		}
		return bulk(v)

	case "SET":
		if len(args) != 2 {
			return arity(name)
		}
		s.strings[args[0]] = args[1]
		return simple("OK")

	case "MSET":
		if len(args) == 0 || len(args)%2 != 0 {
			return arity(name)
		}
		for i := 0; i < len(args); i += 2 {
			s.strings[args[i]] = args[i+1]
		}
		return simple("OK")

	case "MGET":
		if len(args) == 0 {
			return arity(name)
		}
		values := make([]resp.Value, len(args))
		for i, key := range args {
			if v, ok := s.strings[key]; ok {
				values[i] = resp.Value{Data: []byte(v)}
			} else {
				values[i] = resp.Value{Null: true}
			}
		}
		return resp.Reply{Kind: resp.KindArray, Array: values}

	case "DEL":
		if len(args) == 0 {
			return arity(name)
		}
		var n int64
		for _, key := range args {
			if s.delete(key) {
				n++
			}
		}
		return integer(n)

	case "INCR":
		if len(args) != 1 {
			return arity(name)
		}
		var n int64
		if v, ok := s.strings[args[0]]; ok {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errorReply("ERR value is not an integer or out of range")
			}
			n = parsed
		}
		n++
		s.strings[args[0]] = strconv.FormatInt(n, 10)
		return integer(n)

	case "HMSET":
		if len(args) < 3 || len(args)%2 != 1 {
			return arity(name)
		}
		h := s.hashes[args[0]]
		if h == nil {
			h = make(map[string]string)
			s.hashes[args[0]] = h
		}
		for i := 1; i < len(args); i += 2 {
			h[args[i]] = args[i+1]
		}
		return simple("OK")

	case "HMGET":
		if len(args) < 2 {
			return arity(name)
		}
		h := s.hashes[args[0]]
		values := make([]resp.Value, len(args)-1)
		for i, field := range args[1:] {
			if v, ok := h[field]; ok {
				values[i] = resp.Value{Data: []byte(v)}
			} else {
				values[i] = resp.Value{Null: true}
			}
		}
		return resp.Reply{Kind: resp.KindArray, Array: values}

	case "HEXISTS":
		if len(args) != 2 {
			return arity(name)
		}
		if _, ok := s.hashes[args[0]][args[1]]; ok {
			return integer(1)
		}
		return integer(0)

	case "SADD":
		if len(args) < 2 {
			return arity(name)
		}
		set := s.sets[args[0]]
		if set == nil {
			set = make(map[string]struct{})
			s.sets[args[0]] = set
		}
		var added int64
		for _, m := range args[1:] {
			if _, ok := set[m]; !ok {
				set[m] = struct{}{}
				added++
			}
		}
		return integer(added)

	case "SMEMBERS":
		if len(args) != 1 {
			return arity(name)
		}
		members := make([]string, 0, len(s.sets[args[0]]))
		for m := range s.sets[args[0]] {
			members = append(members, m)
		}
		slices.Sort(members)
		values := make([]resp.Value, len(members))
		for i, m := range members {
			values[i] = resp.Value{Data: []byte(m)}
		}
		return resp.Reply{Kind: resp.KindArray, Array: values}

	default:
		return errorReply("ERR unknown command '" + strings.ToLower(name) + "'")
	}
}

func (s *Store) delete(key string) bool {
	_, str := s.strings[key]
	_, hash := s.hashes[key]
	_, set := s.sets[key]
	delete(s.strings, key)
	delete(s.hashes, key)
	delete(s.sets, key)
	return str || hash || set
}

func simple(s string) resp.Reply {
	return resp.Reply{Kind: resp.KindSimple, Str: s}
}

func bulk(s string) resp.Reply {
	return resp.Reply{Kind: resp.KindBulk, Str: s}
}

func integer(n int64) resp.Reply {
	return resp.Reply{Kind: resp.KindInteger, Int: n}
}

func errorReply(msg string) resp.Reply {
	return resp.Reply{Kind: resp.KindError, Str: msg}
}

func arity(name string) resp.Reply {
	return errorReply("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
}
