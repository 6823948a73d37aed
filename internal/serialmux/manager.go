package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/rover.control/internal/monitoring"
)

// ErrManagerClosed is returned by Manager operations after Close.
var ErrManagerClosed = errors.New("serial manager is closed")

// Factory opens a mux for path with opts. Real, replay and disabled modes
// each supply their own.
type Factory func(path string, opts PortOptions) (SerialMuxInterface, error)

// RealFactory opens a physical port.
func RealFactory(path string, opts PortOptions) (SerialMuxInterface, error) {
	return NewRealSerialMux(path, opts)
}

// Connection describes the port a Manager is attached to.
type Connection struct {
	Connected bool        `json:"connected"`
	PortPath  string      `json:"port_path,omitempty"`
	Options   PortOptions `json:"options"`
	Error     string      `json:"error,omitempty"`
	Since     time.Time   `json:"since"`
}

// Manager owns the active mux and lets callers switch ports at runtime.
// Subscriptions are made against the Manager and survive reconnects: a
// fanout goroutine re-subscribes to whichever mux is current.
type Manager struct {
	mu      sync.RWMutex
	current SerialMuxInterface
	conn    Connection
	closed  bool
	factory Factory

	reconnectMu sync.Mutex

	done        chan struct{}
	fanoutMu    sync.RWMutex
	subscribers map[string]chan string
}

// NewManager wraps initial, which may be nil. conn describes initial.
func NewManager(initial SerialMuxInterface, conn Connection, factory Factory) *Manager {
	if initial == nil {
		initial = NewDisabledSerialMux()
		conn.Connected = false
	}
	if conn.Since.IsZero() {
		conn.Since = time.Now()
	}
	m := &Manager{
		current:     initial,
		conn:        conn,
		factory:     factory,
		done:        make(chan struct{}),
		subscribers: make(map[string]chan string),
	}
	go m.runFanout()
	return m
}

// CurrentMux returns the active mux.
func (m *Manager) CurrentMux() SerialMuxInterface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Connection returns the active connection description.
func (m *Manager) Connection() Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Manager) runFanout() {
	var subID string
	var subCh chan string
	var subMux SerialMuxInterface

	defer func() {
		if subMux != nil {
			subMux.Unsubscribe(subID)
		}
		m.fanoutMu.Lock()
		for id, ch := range m.subscribers {
			close(ch)
			delete(m.subscribers, id)
		}
		m.fanoutMu.Unlock()
	}()

	for {
		if subMux == nil {
			mux := m.CurrentMux()
			if mux == nil {
				select {
				case <-m.done:
					return
				case <-time.After(50 * time.Millisecond):
					continue
				}
			}
			subMux = mux
			subID, subCh = mux.Subscribe()
		}

		select {
		case <-m.done:
			return

		case line, ok := <-subCh:
			if !ok {
				// The mux was closed, usually by a reconnect.
				subMux, subID, subCh = nil, "", nil
				select {
				case <-m.done:
					return
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}

			m.fanoutMu.RLock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					monitoring.Diagf("serial fanout: subscriber full, dropping line")
				}
			}
			m.fanoutMu.RUnlock()
		}
	}
}

// Subscribe returns a channel that keeps receiving lines across reconnects.
// After Close it returns a closed channel.
func (m *Manager) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		close(ch)
		return id, ch
	}

	m.fanoutMu.Lock()
	defer m.fanoutMu.Unlock()
	// Checked under fanoutMu so Close cannot clear subscribers in between.
	select {
	case <-m.done:
		close(ch)
	default:
		m.subscribers[id] = ch
	}
	return id, ch
}

func (m *Manager) Unsubscribe(id string) {
	m.fanoutMu.Lock()
	defer m.fanoutMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand writes to the active mux.
func (m *Manager) SendCommand(command string) error {
	m.mu.RLock()
	mux, closed := m.current, m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	return mux.SendCommand(command)
}

// Monitor runs the active mux's Monitor, following reconnects, until ctx is
// cancelled.
func (m *Manager) Monitor(ctx context.Context) error {
	for {
		mux := m.CurrentMux()
		if mux == nil {
			return ErrManagerClosed
		}

		err := mux.Monitor(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			monitoring.Opsf("serial monitor stopped: %v", err)
			m.mu.Lock()
			if m.current == mux {
				m.conn.Connected = false
				m.conn.Error = err.Error()
			}
			m.mu.Unlock()
		}

		// Wait for a different mux before monitoring again.
		for m.CurrentMux() == mux {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

// Stats reports the active mux's counters.
func (m *Manager) Stats() Stats {
	if mux := m.CurrentMux(); mux != nil {
		return mux.Stats()
	}
	return Stats{}
}

// Reconnect closes the active mux and opens path with opts. On failure the
// manager falls back to a disabled mux and reports the error.
func (m *Manager) Reconnect(ctx context.Context, path string, opts PortOptions) (Connection, error) {
	if m.factory == nil {
		return Connection{}, errors.New("serial factory not configured")
	}
	if err := ctx.Err(); err != nil {
		return Connection{}, err
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return Connection{}, fmt.Errorf("invalid serial options: %w", err)
	}

	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Connection{}, ErrManagerClosed
	}

	// The old port must be released first when reopening the same path.
	m.swap(NewDisabledSerialMux(), Connection{PortPath: path, Options: normalized})

	mux, err := m.factory(path, normalized)
	if err != nil {
		m.mu.Lock()
		m.conn.Error = err.Error()
		conn := m.conn
		m.mu.Unlock()
		monitoring.Opsf("serial connect %s failed: %v", path, err)
		return conn, fmt.Errorf("open serial port %s: %w", path, err)
	}

	conn := Connection{Connected: true, PortPath: path, Options: normalized}
	m.swap(mux, conn)
	monitoring.Opsf("serial connected: %s at %d baud", path, normalized.BaudRate)
	return m.Connection(), nil
}

// Disconnect closes the active port and leaves a disabled mux in its place.
func (m *Manager) Disconnect() Connection {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	prev := m.Connection()
	m.swap(NewDisabledSerialMux(), Connection{PortPath: prev.PortPath, Options: prev.Options})
	monitoring.Opsf("serial disconnected")
	return m.Connection()
}

func (m *Manager) swap(next SerialMuxInterface, conn Connection) {
	conn.Since = time.Now()
	m.mu.Lock()
	old := m.current
	m.current = next
	m.conn = conn
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			monitoring.Diagf("closing previous serial mux: %v", err)
		}
	}
}

// Close closes the active mux and every subscriber channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cur := m.current
	m.current = nil
	m.conn.Connected = false
	m.mu.Unlock()

	close(m.done)
	if cur != nil {
		return cur.Close()
	}
	return nil
}

func (m *Manager) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, m)
}
