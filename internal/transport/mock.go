package transport

import (
	"context"
	"sync"

	"github.com/banshee-data/rover.control/internal/motion"
)

// MockTransport records commands instead of sending them.
type MockTransport struct {
	mu   sync.Mutex
	sent []motion.MotionCommand
	errs []error

	// Err, when set, is returned for every send after queued errors run out.
	Err error
	// Block, when non-nil, holds each Send until it is closed or ctx ends.
	Block chan struct{}
}

// NewMockTransport returns an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// FailNext queues err for the next send.
func (m *MockTransport) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Send implements Transport.
func (m *MockTransport) Send(ctx context.Context, cmd motion.MotionCommand) (Ack, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return Ack{}, &TransportError{Channel: cmd.Channel, Endpoint: cmd.Channel.Endpoint(), Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)

	err := m.Err
	if len(m.errs) > 0 {
		err = m.errs[0]
		m.errs = m.errs[1:]
	}
	if err != nil {
		return Ack{Endpoint: cmd.Channel.Endpoint()}, &TransportError{Channel: cmd.Channel, Endpoint: cmd.Channel.Endpoint(), Err: err}
	}
	return Ack{Endpoint: cmd.Channel.Endpoint(), StatusCode: 200}, nil
}

// Sent returns a copy of every command received so far.
func (m *MockTransport) Sent() []motion.MotionCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]motion.MotionCommand, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset forgets recorded commands and queued errors.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.errs = nil
	m.Err = nil
}
