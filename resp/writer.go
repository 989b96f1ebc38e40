package resp

import (
	"strconv"
)

// Args converts string arguments to the byte-string form commands carry.
func Args(values ...string) [][]byte {
	args := make([][]byte, len(values))
	for i, v := range values {
		args[i] = []byte(v)
	}
	return args
}

// EncodeCommand serializes a command to wire format.
// Format: *<argc>\r\n followed by $<len>\r\n<bytes>\r\n per argument, the name first.
//
// Framing is length-prefixed, so arguments are written as-is: no escaping, and
// binary data (including CRLF) is allowed anywhere.
func EncodeCommand(name string, args ...[]byte) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyCommand
	}

	size := commandSize(name, args)
	return AppendCommand(make([]byte, 0, size), name, args...), nil
}

// AppendCommand appends the wire format of a command to dst.
// The caller guarantees name is not empty.
func AppendCommand(dst []byte, name string, args ...[]byte) []byte {
	dst = appendHeader(dst, MarkerArray, len(args)+1)

	dst = appendHeader(dst, MarkerBulk, len(name))
	dst = append(dst, name...)
	dst = append(dst, CRLF...)

	for _, arg := range args {
		dst = appendHeader(dst, MarkerBulk, len(arg))
		dst = append(dst, arg...)
		dst = append(dst, CRLF...)
	}
	return dst
}

// commandSize returns the exact encoded size, so EncodeCommand allocates once.
func commandSize(name string, args [][]byte) int {
	size := headerSize(len(args)+1) + headerSize(len(name)) + len(name) + 2
	for _, arg := range args {
		size += headerSize(len(arg)) + len(arg) + 2
	}
	return size
}

func headerSize(n int) int {
	digits := 1
	for n >= 10 {
		n /= 10
		digits++
	}
	return 1 + digits + 2
}

func appendHeader(dst []byte, marker byte, n int) []byte {
	dst = append(dst, marker)
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, CRLF...)
}

// AppendReply appends the wire format of a reply to dst.
// Map replies are written as the flat array they were decoded from, in field order
// when fields is given. Locally generated failures are written as "-" lines.
func AppendReply(dst []byte, r Reply, fields ...string) []byte {
	switch r.Kind {
	case KindSimple:
		dst = append(dst, MarkerSimple)
		dst = append(dst, r.Str...)
		return append(dst, CRLF...)
	case KindError:
		dst = append(dst, MarkerError)
		dst = append(dst, r.Str...)
		return append(dst, CRLF...)
	case KindInteger:
		dst = append(dst, MarkerInteger)
		dst = strconv.AppendInt(dst, r.Int, 10)
		return append(dst, CRLF...)
	case KindBulk:
		dst = appendHeader(dst, MarkerBulk, len(r.Str))
		dst = append(dst, r.Str...)
		return append(dst, CRLF...)
	case KindNull:
		return appendHeader(dst, MarkerBulk, nullLength)
	case KindArray:
		return appendValues(dst, r.Array)
	case KindMap:
		values := make([]Value, len(fields))
		for i, f := range fields {
			values[i] = r.Map[f]
		}
		return appendValues(dst, values)
	default:
		return dst
	}
}

func appendValues(dst []byte, values []Value) []byte {
	dst = appendHeader(dst, MarkerArray, len(values))
	for _, v := range values {
		switch {
		case v.Null:
			dst = appendHeader(dst, MarkerBulk, nullLength)
		case v.Err:
			dst = append(dst, MarkerError)
			dst = append(dst, v.Data...)
			dst = append(dst, CRLF...)
		case v.Array != nil:
			dst = appendValues(dst, v.Array)
		default:
			dst = appendHeader(dst, MarkerBulk, len(v.Data))
			dst = append(dst, v.Data...)
			dst = append(dst, CRLF...)
		}
	}
	return dst
}
