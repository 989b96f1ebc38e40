package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// MaxBulkLength is the largest bulk payload the decoder accepts (512MB, the server limit).
const MaxBulkLength = 512 << 20

// Decoder buffers above this capacity are released when the decoder resets.
const maxRetainedBuffer = 64 << 10

// errIncomplete signals that the buffer ends before the reply does.
var errIncomplete = errors.New("resp: incomplete reply")

// continuation is what the decoder waits for before parsing again.
type continuation uint8

const (
	fresh         continuation = iota
	awaitingBytes              // buffered length must reach need
	awaitingLines              // buffered CRLF count must reach need
)

// Decoder turns a stream of received chunks into complete replies.
//
// Feed may be called with arbitrarily fragmented input: a reply split at any byte
// boundary decodes to the same Reply as when delivered in one chunk. Between
// chunks the decoder remembers exactly one continuation, either a byte count
// (inside a bulk payload of known length) or a line count (inside a header line),
// and only parses again once that threshold is met.
//
// Elements of an array that are already decoded are kept across chunks: the
// buffer restarts at the incomplete element, so a large array is parsed once.
//
// A Decoder serves one reply at a time: bytes trailing a complete reply in the
// same chunk are dropped and counted in Discarded.
type Decoder struct {
	buf       []byte
	wait      continuation
	need      int
	lines     int     // CRLF terminators in buf, maintained while awaitingLines
	stack     []frame // arrays still open, outermost first
	discarded int
}

// frame is an array whose elements are still arriving.
type frame struct {
	values []Value
	count  int
}

// Feed appends chunk and reports the reply when it is complete.
// A reply that cannot be framed is returned as a ready Error reply carrying a
// *ProtocolError. After any ready outcome the decoder is fresh again.
func (d *Decoder) Feed(chunk []byte) (Reply, bool) {
	switch d.wait {
	case awaitingBytes:
		d.buf = append(d.buf, chunk...)
		if len(d.buf) < d.need {
			return Reply{}, false
		}

	case awaitingLines:
		// Start one byte early: a CR ending the previous chunk pairs with a leading LF.
		from := max(len(d.buf)-1, 0)
		d.buf = append(d.buf, chunk...)
		d.lines += bytes.Count(d.buf[from:], crlfBytes)
		if d.lines < d.need {
			return Reply{}, false
		}

	default:
		d.buf = append(d.buf[:0], chunk...)
	}

	return d.parse()
}

// Pending reports whether a partial reply is buffered.
func (d *Decoder) Pending() bool {
	return d.wait != fresh
}

// Buffered returns the number of bytes held for the reply in progress.
func (d *Decoder) Buffered() int {
	if d.wait == fresh {
		return 0
	}
	return len(d.buf)
}

// Discarded returns the number of trailing bytes dropped after the last reply.
func (d *Decoder) Discarded() int {
	return d.discarded
}

// Reset drops any partial reply.
func (d *Decoder) Reset() {
	d.wait = fresh
	d.need = 0
	d.lines = 0
	clear(d.stack)
	d.stack = d.stack[:0]
	if cap(d.buf) > maxRetainedBuffer {
		d.buf = nil
	} else {
		d.buf = d.buf[:0]
	}
}

// parse decodes tokens from the buffer until the reply is complete or the
// buffer runs out. This is the single "reply ready" exit.
func (d *Decoder) parse() (Reply, bool) {
	p := parser{buf: d.buf}

	for {
		start := p.pos
		tok, err := p.token()
		if err == errIncomplete {
			d.suspend(start, &p)
			return Reply{}, false
		}
		if err != nil {
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				perr = &ProtocolError{Message: "decode failed", Err: err}
			}
			d.discarded = 0
			d.Reset()
			return Reply{Kind: KindError, Str: perr.Error(), Err: perr}, true
		}

		if tok.marker == MarkerArray && !tok.null && tok.count > 0 {
			d.stack = append(d.stack, frame{values: make([]Value, 0, min(tok.count, 1024)), count: tok.count})
			continue
		}
		if len(d.stack) == 0 {
			return d.finish(p.pos, tok.reply())
		}

		v := tok.value()
		for {
			top := &d.stack[len(d.stack)-1]
			top.values = append(top.values, v)
			if len(top.values) < top.count {
				break
			}
			values := top.values
			*top = frame{}
			d.stack = d.stack[:len(d.stack)-1]
			if len(d.stack) == 0 {
				return d.finish(p.pos, Reply{Kind: KindArray, Array: values})
			}
			v = Value{Array: values}
		}
	}
}

// suspend keeps the incomplete token at the front of the buffer and records
// what it waits for.
func (d *Decoder) suspend(start int, p *parser) {
	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]
	d.wait = p.wait

	switch p.wait {
	case awaitingBytes:
		d.need = p.need - start
	case awaitingLines:
		d.lines = bytes.Count(d.buf, crlfBytes)
		d.need = d.lines + 1
	}
}

func (d *Decoder) finish(pos int, reply Reply) (Reply, bool) {
	d.discarded = len(d.buf) - pos
	d.Reset()
	return reply, true
}

// parser walks one buffered reply. It never mutates the buffer and copies
// every payload it returns, so the decoder may reuse its buffer afterwards.
type parser struct {
	buf  []byte
	pos  int
	wait continuation
	need int
}

// line returns the next line without its terminator.
func (p *parser) line() ([]byte, error) {
	i := bytes.Index(p.buf[p.pos:], crlfBytes)
	if i < 0 {
		p.wait = awaitingLines
		return nil, errIncomplete
	}

	line := p.buf[p.pos : p.pos+i]
	p.pos += i + len(CRLF)
	if len(line) == 0 {
		return nil, &ProtocolError{Message: "empty line"}
	}
	return line, nil
}

// token is one decoded line with its payload: a scalar, or the header of an
// array whose elements follow.
type token struct {
	marker byte
	data   []byte // line text or bulk payload, copied out of the buffer
	null   bool
	count  int // array element count
}

// token reads the next token. On errIncomplete the caller restarts from the
// token's first byte.
func (p *parser) token() (token, error) {
	line, err := p.line()
	if err != nil {
		return token{}, err
	}

	tok := token{marker: line[0]}
	switch line[0] {
	case MarkerBulk:
		tok.data, tok.null, err = p.bulk(line[1:])
		if err != nil {
			return token{}, err
		}

	case MarkerArray:
		n, err := p.length(line[1:], "array length")
		if err != nil {
			return token{}, err
		}
		// Every element takes at least 4 bytes, reject counts the buffer can never hold.
		if n > MaxBulkLength/4 {
			return token{}, &ProtocolError{Message: "array length exceeds limit"}
		}
		tok.null = n == nullLength
		tok.count = max(n, 0)

	case MarkerInteger:
		if _, err := strconv.ParseInt(string(line[1:]), 10, 64); err != nil {
			return token{}, &ProtocolError{Message: "invalid integer reply", Err: err}
		}
		tok.data = bytes.Clone(line[1:])

	case MarkerSimple, MarkerError:
		tok.data = bytes.Clone(line[1:])

	default:
		return token{}, &ProtocolError{Message: fmt.Sprintf("unknown reply type %q", line[0])}
	}
	return tok, nil
}

// reply converts a top-level token. Arrays reach here only when empty or null.
func (t token) reply() Reply {
	switch t.marker {
	case MarkerError:
		return errorReply(string(t.data))
	case MarkerSimple:
		return Reply{Kind: KindSimple, Str: string(t.data)}
	case MarkerInteger:
		n, _ := strconv.ParseInt(string(t.data), 10, 64)
		return Reply{Kind: KindInteger, Int: n}
	case MarkerBulk:
		if t.null {
			return Reply{Kind: KindNull}
		}
		return Reply{Kind: KindBulk, Str: string(t.data)}
	default:
		if t.null {
			return Reply{Kind: KindNull}
		}
		return Reply{Kind: KindArray, Array: []Value{}}
	}
}

// value converts a token read inside an array. Arrays reach here only when empty or null.
func (t token) value() Value {
	switch t.marker {
	case MarkerError:
		return Value{Data: t.data, Err: true}
	case MarkerArray:
		if t.null {
			return Value{Null: true}
		}
		return Value{Array: []Value{}}
	default:
		return Value{Data: t.data, Null: t.null}
	}
}

// length parses a bulk length or an array count; -1 means null.
func (p *parser) length(header []byte, what string) (int, error) {
	n, err := strconv.Atoi(string(header))
	if err != nil {
		return 0, &ProtocolError{Message: "invalid " + what, Err: err}
	}
	if n < nullLength {
		return 0, &ProtocolError{Message: "negative " + what}
	}
	return n, nil
}

func (p *parser) bulk(header []byte) ([]byte, bool, error) {
	n, err := p.length(header, "bulk length")
	if err != nil {
		return nil, false, err
	}
	if n == nullLength {
		return nil, true, nil
	}
	if n > MaxBulkLength {
		return nil, false, &ProtocolError{Message: "bulk length exceeds " + strconv.Itoa(MaxBulkLength)}
	}

	end := p.pos + n + len(CRLF)
	if end > len(p.buf) {
		p.wait = awaitingBytes
		p.need = end
		return nil, false, errIncomplete
	}
	if !bytes.Equal(p.buf[p.pos+n:end], crlfBytes) {
		return nil, false, &ProtocolError{Message: "bulk payload not terminated by CRLF"}
	}

	data := make([]byte, n)
	copy(data, p.buf[p.pos:p.pos+n])
	p.pos = end
	return data, false, nil
}
