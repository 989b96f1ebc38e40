package resp

import (
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape of a Reply.
type Kind uint8

const (
	KindSimple Kind = iota + 1
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
	KindMap // Array reply keyed by caller-supplied field names
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is one element of an array reply.
// A null bulk element (a missing key in MGET/HMGET) has Null set and no Data.
type Value struct {
	Data  []byte
	Null  bool
	Err   bool    // element was a "-" line
	Array []Value // nested array element
}

func (v Value) String() string {
	return string(v.Data)
}

// Reply is a decoded server reply, or a locally generated failure.
//
// Str holds the payload of Simple, Error and Bulk replies; Int holds Integer
// replies; Array holds Array replies and Map holds Array replies decoded with
// field names. Err is set for every Error reply: *ReplyError for "-" lines,
// *ProtocolError or *ConnectionError for failures raised by the client.
type Reply struct {
	Kind  Kind
	Str   string
	Int   int64
	Array []Value
	Map   map[string]Value
	Err   error
}

// OK reports the success flag delivered with the reply: false only for errors.
func (r Reply) OK() bool {
	return r.Kind != KindError
}

// Failure builds an error reply carrying err, with text as its value.
func Failure(text string, err error) Reply {
	return Reply{Kind: KindError, Str: text, Err: err}
}

func errorReply(msg string) Reply {
	return Reply{Kind: KindError, Str: msg, Err: &ReplyError{Message: msg}}
}

// Named turns an array reply into a mapping from fields[i] to element i.
// Elements beyond the field list are dropped, fields beyond the elements are absent.
// Replies of any other kind, or an empty field list, are returned unchanged.
func (r Reply) Named(fields []string) Reply {
	if r.Kind != KindArray || len(fields) == 0 {
		return r
	}

	m := make(map[string]Value, len(fields))
	for i, v := range r.Array {
		if i >= len(fields) {
			break
		}
		m[fields[i]] = v
	}

	return Reply{Kind: KindMap, Map: m}
}

// Strings returns the elements of an array reply as strings, null elements as "".
func (r Reply) Strings() []string {
	out := make([]string, len(r.Array))
	for i, v := range r.Array {
		out[i] = string(v.Data)
	}
	return out
}

// String renders the reply the way redis-cli prints it.
func (r Reply) String() string {
	var sb strings.Builder
	writeReply(&sb, r)
	return sb.String()
}

func writeReply(sb *strings.Builder, r Reply) {
	switch r.Kind {
	case KindSimple:
		sb.WriteString(r.Str)
	case KindError:
		sb.WriteString("(error) ")
		sb.WriteString(r.Str)
	case KindInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(r.Int, 10))
	case KindBulk:
		sb.WriteString(strconv.Quote(r.Str))
	case KindNull:
		sb.WriteString("(nil)")
	case KindArray:
		if len(r.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		writeValues(sb, r.Array, "")
	case KindMap:
		keys := make([]string, 0, len(r.Map))
		for k := range r.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			writeValue(sb, r.Map[k], "")
		}
	}
}

func writeValues(sb *strings.Builder, values []Value, indent string) {
	for i, v := range values {
		if i > 0 {
			sb.WriteByte('\n')
			sb.WriteString(indent)
		}
		prefix := strconv.Itoa(i+1) + ") "
		sb.WriteString(prefix)
		writeValue(sb, v, indent+strings.Repeat(" ", len(prefix)))
	}
}

func writeValue(sb *strings.Builder, v Value, indent string) {
	switch {
	case v.Null:
		sb.WriteString("(nil)")
	case v.Err:
		sb.WriteString("(error) ")
		sb.Write(v.Data)
	case v.Array != nil:
		if len(v.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		writeValues(sb, v.Array, indent)
	default:
		sb.WriteString(strconv.Quote(string(v.Data)))
	}
}
