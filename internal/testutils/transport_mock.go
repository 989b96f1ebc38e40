package testutils

import (
	"bytes"
	"context"
	"sync/atomic"
)

// TransportMock is a mock transport for driving a connection by hand.
// It records what the connection does; the test delivers the events.
// Close may be called from any goroutine.
type TransportMock struct {
	Addr         string
	ConnectCalls int

	// SendErr is returned by every Send when set.
	SendErr error

	sent       [][]byte
	closeCalls atomic.Int32
}

// NewTransportMock creates a new mock transport.
func NewTransportMock() *TransportMock {
	return &TransportMock{}
}

func (m *TransportMock) Connect(ctx context.Context, addr string) {
	m.Addr = addr
	m.ConnectCalls++
}

func (m *TransportMock) Send(frame []byte) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, bytes.Clone(frame))
	return nil
}

func (m *TransportMock) Close() error {
	m.closeCalls.Add(1)
	return nil
}

// Closed reports whether Close was called.
func (m *TransportMock) Closed() bool {
	return m.closeCalls.Load() > 0
}

// CloseCount returns the number of Close calls.
func (m *TransportMock) CloseCount() int {
	return int(m.closeCalls.Load())
}

// Frames returns the frames sent, in order.
func (m *TransportMock) Frames() [][]byte {
	return m.sent
}

// GetWrittenRequest returns all the bytes sent as one string.
func (m *TransportMock) GetWrittenRequest() string {
	return string(bytes.Join(m.sent, nil))
}
