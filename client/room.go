package client

import (
	"sync"

	"consult-service/internal/models"
)

// roomState is the tagged membership state. join is a no-op transition
// when already joined.
type roomState int

const (
	roomClosed roomState = iota
	roomJoining
	roomJoined
)

type membership struct {
	roomID string
	state  roomState
	sub    *Subscription
}

// Subscription is the handle returned from JoinRoom. Closing it is the
// only way to stop receiving room events, and it guarantees the matching
// leave on every exit path (pair it with defer).
type Subscription struct {
	roomID string
	events chan models.Event
	mu     sync.Mutex
	closed bool
	leave  func()
}

// Events delivers the room's server events: newMessage, typing,
// user_joined, error, session_revoked.
func (s *Subscription) Events() <-chan models.Event { return s.events }

// Close leaves the room and releases the event channel. Idempotent.
func (s *Subscription) Close() {
	if s.leave != nil {
		s.leave()
	}
	s.detach()
}

// detach releases the channel without sending leaveRoom. Used when the
// connection itself is gone.
func (s *Subscription) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// deliver hands an event to the subscriber without ever blocking the read
// pump. Events arriving after close are dropped.
func (s *Subscription) deliver(event models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// JoinRoom subscribes to the appointment's room. It fails fast with
// ErrNotConnected when the connection does not exist; joins are never
// queued. Double-join is idempotent: the existing subscription is
// returned, no second joinRoom frame is sent, and no second listener set
// is registered.
func (m *ConnectionManager) JoinRoom(roomID string) (*Subscription, error) {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	if mem, ok := m.members[roomID]; ok && mem.state != roomClosed {
		m.mu.Unlock()
		return mem.sub, nil
	}

	sub := &Subscription{
		roomID: roomID,
		events: make(chan models.Event, 32),
	}
	sub.leave = func() { m.LeaveRoom(roomID) }
	mem := &membership{roomID: roomID, state: roomJoining, sub: sub}
	m.members[roomID] = mem
	conn := m.conn
	m.mu.Unlock()

	if err := conn.WriteEvent(models.Event{Type: models.EventJoinRoom, RoomID: roomID}); err != nil {
		m.mu.Lock()
		delete(m.members, roomID)
		m.mu.Unlock()
		return nil, &ConnectionError{Reason: "join failed", Err: err}
	}

	m.mu.Lock()
	mem.state = roomJoined
	m.mu.Unlock()
	return sub, nil
}

// LeaveRoom unsubscribes from the room. Safe to call on every exit path;
// leaving a room that was never joined is a no-op.
func (m *ConnectionManager) LeaveRoom(roomID string) {
	m.mu.Lock()
	mem, ok := m.members[roomID]
	if ok {
		delete(m.members, roomID)
	}
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !ok {
		return
	}
	if connected && conn != nil {
		_ = conn.WriteEvent(models.Event{Type: models.EventLeaveRoom, RoomID: roomID})
	}
	mem.sub.detach()
}
