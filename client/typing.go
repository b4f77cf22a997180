package client

import (
	"sync"

	"go.uber.org/zap"

	"consult-service/internal/models"
)

// TypingCoordinator emits the transient typing signal for a room. It fires
// on edge transitions only (off→on and on→off), never per keystroke, and
// is fire-and-forget: a dropped signal degrades UX but never corrupts
// state, because typing is not part of the durable log.
type TypingCoordinator struct {
	conn   *ConnectionManager
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]bool
}

// NewTypingCoordinator constructs a coordinator bound to the connection.
func NewTypingCoordinator(conn *ConnectionManager, logger *zap.Logger) *TypingCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingCoordinator{conn: conn, logger: logger, last: make(map[string]bool)}
}

// SetTyping records the local typing state for a room, transmitting only
// when the state actually flips.
func (t *TypingCoordinator) SetTyping(roomID string, isTyping bool) {
	t.mu.Lock()
	if t.last[roomID] == isTyping {
		t.mu.Unlock()
		return
	}
	t.last[roomID] = isTyping
	t.mu.Unlock()

	err := t.conn.writeEvent(models.Event{
		Type:   models.EventTyping,
		RoomID: roomID,
		Typing: &models.TypingState{RoomID: roomID, IsTyping: isTyping},
	})
	if err != nil {
		t.logger.Debug("typing signal dropped", zap.String("room_id", roomID), zap.Error(err))
	}
}

// Reset clears the tracked state for a room, so a future session starts
// from off.
func (t *TypingCoordinator) Reset(roomID string) {
	t.mu.Lock()
	delete(t.last, roomID)
	t.mu.Unlock()
}
