package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"consult-service/internal/models"
)

const (
	maxConnectAttempts = 5
	connectBackoffStep = time.Second
)

// Conn is one live transport connection. The gorilla implementation is the
// default; tests substitute a fake.
type Conn interface {
	ReadEvent() (models.Event, error)
	WriteEvent(models.Event) error
	Close() error
}

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadEvent() (models.Event, error) {
	var event models.Event
	err := c.conn.ReadJSON(&event)
	return event, err
}

func (c *wsConn) WriteEvent(event models.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

func (c *wsConn) Close() error { return c.conn.Close() }

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// LifecycleEvent is surfaced for UI and logging; lifecycle transitions are
// never silently swallowed.
type LifecycleEvent struct {
	State  ConnState
	Reason string
}

// ConnectionManager owns the single transport connection for the client
// process. It is constructed explicitly and passed to consumers; no other
// component dials the transport directly. Room traffic goes through the
// membership API in room.go.
type ConnectionManager struct {
	url    string
	token  string
	dialer Dialer
	logger *zap.Logger

	mu      sync.Mutex
	conn    Conn
	state   ConnState
	attempt *connectAttempt
	members map[string]*membership

	backoff   time.Duration
	lifecycle chan LifecycleEvent
}

// connectAttempt coalesces overlapping Connect callers onto one dial loop.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewConnectionManager constructs a manager for the given transport
// endpoint. The token authenticates the handshake.
func NewConnectionManager(url, token string, dialer Dialer, logger *zap.Logger) *ConnectionManager {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		url:       url,
		token:     token,
		dialer:    dialer,
		logger:    logger,
		state:     StateDisconnected,
		members:   make(map[string]*membership),
		backoff:   connectBackoffStep,
		lifecycle: make(chan LifecycleEvent, 16),
	}
}

// Lifecycle exposes connection state transitions.
func (m *ConnectionManager) Lifecycle() <-chan LifecycleEvent { return m.lifecycle }

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect establishes the transport connection. Idempotent: a live
// connection is reused, never duplicated, and overlapping callers share
// the in-flight attempt instead of dialing a second time. On failure it
// retries up to 5 attempts with a linearly growing one-second backoff,
// then gives up and reports disconnected with a ConnectionError.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected && m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	if att := m.attempt; att != nil {
		m.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return &ConnectionError{Reason: "connect cancelled", Err: ctx.Err()}
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	m.attempt = att
	m.state = StateConnecting
	m.mu.Unlock()
	m.emit(LifecycleEvent{State: StateConnecting})

	att.err = m.dialLoop(ctx)

	m.mu.Lock()
	m.attempt = nil
	m.mu.Unlock()
	close(att.done)
	return att.err
}

func (m *ConnectionManager) dialLoop(ctx context.Context) error {
	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := m.dialer.Dial(ctx, m.url, header)
		if err == nil {
			m.mu.Lock()
			if m.conn != nil {
				// Another connection raced in; keep it, discard ours.
				m.mu.Unlock()
				conn.Close()
				return nil
			}
			m.conn = conn
			m.state = StateConnected
			m.mu.Unlock()
			m.emit(LifecycleEvent{State: StateConnected})
			go m.readPump(conn)
			return nil
		}

		lastErr = err
		m.logger.Warn("transport dial failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == maxConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			m.setDisconnected(ctx.Err().Error())
			return &ConnectionError{Reason: "connect cancelled", Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}

	m.setDisconnected("retries exhausted")
	return &ConnectionError{Reason: "handshake failed after bounded retries", Err: lastErr}
}

// Disconnect tears down the connection and closes every room membership.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	members := m.drainMembersLocked()
	m.mu.Unlock()

	for _, mem := range members {
		mem.sub.detach()
	}
	if conn != nil {
		conn.Close()
	}
	m.emit(LifecycleEvent{State: StateDisconnected, Reason: "client disconnect"})
}

// readPump routes incoming events to room subscriptions until the
// connection dies. Events for rooms without an active membership are
// dropped, which also covers sends completing after leave.
func (m *ConnectionManager) readPump(conn Conn) {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			var members []*membership
			if current {
				m.conn = nil
				m.state = StateDisconnected
				members = m.drainMembersLocked()
			}
			m.mu.Unlock()
			if current {
				for _, mem := range members {
					mem.sub.detach()
				}
				m.emit(LifecycleEvent{State: StateDisconnected, Reason: err.Error()})
			}
			return
		}
		m.dispatch(event)
	}
}

func (m *ConnectionManager) dispatch(event models.Event) {
	m.mu.Lock()
	mem := m.members[event.RoomID]
	m.mu.Unlock()
	if mem == nil {
		return
	}
	if !mem.sub.deliver(event) {
		m.logger.Warn("subscription backlog full, dropping event",
			zap.String("room_id", event.RoomID),
			zap.String("type", event.Type),
		)
	}
}

func (m *ConnectionManager) drainMembersLocked() []*membership {
	members := make([]*membership, 0, len(m.members))
	for _, mem := range m.members {
		members = append(members, mem)
	}
	m.members = make(map[string]*membership)
	return members
}

func (m *ConnectionManager) setDisconnected(reason string) {
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	m.emit(LifecycleEvent{State: StateDisconnected, Reason: reason})
}

func (m *ConnectionManager) emit(event LifecycleEvent) {
	select {
	case m.lifecycle <- event:
	default:
		m.logger.Warn("lifecycle backlog full, dropping event", zap.String("state", string(event.State)))
	}
}

// writeEvent sends one frame over the live connection.
func (m *ConnectionManager) writeEvent(event models.Event) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteEvent(event)
}
