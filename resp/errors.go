package resp

import (
	"errors"
	"fmt"
)

// Error types for RESP client operations.
// Every failure reaches the caller as a Reply whose Err field holds one of these,
// so callers can branch with errors.Is / errors.As.

var (
	// ErrEmptyCommand is returned when encoding a command without a name.
	ErrEmptyCommand = errors.New("resp: command name is empty")

	// ErrConnectTimeout resolves a command that was buffered on a connection
	// which closed before it ever connected.
	ErrConnectTimeout = errors.New("resp: " + TextTimeout)

	// ErrConnectionLost resolves a command that was transmitted on a connection
	// which closed before the reply arrived.
	ErrConnectionLost = errors.New("resp: " + TextConnectionLost)
)

// ReplyError represents a "-" reply from the server.
// The server understood the request and refused it.
//
// Connection handling: Connection can be REUSED.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return e.Message
}

// Prefix returns the error code, the first word of the message (ERR, WRONGTYPE...).
func (e *ReplyError) Prefix() string {
	for i := 0; i < len(e.Message); i++ {
		if e.Message[i] == ' ' {
			return e.Message[:i]
		}
	}
	return e.Message
}

// ProtocolError represents a reply the decoder could not frame.
// Indicates an unknown type marker or a malformed length/count header.
//
// Connection handling: the decoder is reset, the connection is reused.
type ProtocolError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "protocol error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ConnectionError describes a command lost to its transport.
//
// Common causes:
//   - Connection refused or connect timeout (Err is ErrConnectTimeout)
//   - Peer closed the connection mid-reply (Err is ErrConnectionLost)
//   - Write failure
//
// Connection handling: the connection is discarded, never returned to the pool.
type ConnectionError struct {
	Op    string // What the command was waiting for: connect or reply
	Err   error  // ErrConnectTimeout or ErrConnectionLost
	Cause error  // Transport error, nil for a clean close
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error during %s: %v: %v", e.Op, e.Err, e.Cause)
	}
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the sentinel and, when present, the transport error.
func (e *ConnectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
