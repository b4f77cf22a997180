package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"consult-service/internal/models"
)

// ChatSession is one open consultation room: the ordered message log, the
// live event pump, typing, and the compose field. Opening acquires the
// room; Close releases it on every exit path.
type ChatSession struct {
	roomID string
	conn   *ConnectionManager
	store  *MessageStore
	typing *TypingCoordinator
	sub    *Subscription
	logger *zap.Logger

	mu           sync.Mutex
	compose      string
	remoteTyping bool
	revoked      bool
	revokeReason string
	closed       bool

	onClose func()
	done    chan struct{}
}

// OpenChatSession fetches the room history, seeds the log, joins the room
// and starts pumping remote events. The connection must already be
// established; join fails fast otherwise.
func OpenChatSession(ctx context.Context, conn *ConnectionManager, api API, roomID string, self models.Participant, logger *zap.Logger) (*ChatSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	history, err := api.RoomHistory(ctx, roomID)
	if err != nil {
		return nil, err
	}

	store := NewMessageStore(roomID, self)
	store.Seed(history)

	sub, err := conn.JoinRoom(roomID)
	if err != nil {
		return nil, err
	}

	s := &ChatSession{
		roomID: roomID,
		conn:   conn,
		store:  store,
		typing: NewTypingCoordinator(conn, logger),
		sub:    sub,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// RoomID returns the session's room.
func (s *ChatSession) RoomID() string { return s.roomID }

// Messages returns the rendered log in order.
func (s *ChatSession) Messages() []models.Message { return s.store.Messages() }

// Done is closed when the session stops receiving events (closed locally
// or revoked by the server).
func (s *ChatSession) Done() <-chan struct{} { return s.done }

// pump folds remote events into the store until the subscription closes.
func (s *ChatSession) pump() {
	defer close(s.done)
	for event := range s.sub.Events() {
		switch event.Type {
		case models.EventNewMessage:
			if event.Message != nil {
				s.store.OnRemote(*event.Message)
			}
		case models.EventTyping:
			if event.Typing != nil {
				s.mu.Lock()
				s.remoteTyping = event.Typing.IsTyping
				s.mu.Unlock()
			}
		case models.EventSessionRevoked:
			s.mu.Lock()
			s.revoked = true
			s.revokeReason = event.Reason
			s.mu.Unlock()
			s.logger.Info("session revoked", zap.String("room_id", s.roomID), zap.String("reason", event.Reason))
			s.Close()
			return
		case models.EventUserJoined:
			s.logger.Debug("user joined room", zap.String("room_id", s.roomID), zap.Int("user_id", event.UserID))
		case models.EventError:
			s.logger.Warn("room error", zap.String("room_id", s.roomID), zap.String("reason", event.Reason))
		}
	}
}

// SendMessage appends an optimistic entry, then transmits. On transmission
// failure the entry is rolled back and the text is restored to the compose
// field, returning a SendFailure: messages are never silently lost or
// duplicated.
func (s *ChatSession) SendMessage(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mu.Unlock()

	optimistic := s.store.AppendOptimistic(text)
	s.typing.SetTyping(s.roomID, false)

	err := s.conn.writeEvent(models.Event{
		Type:          models.EventSendMessage,
		RoomID:        s.roomID,
		Text:          text,
		CorrelationID: optimistic.CorrelationID,
	})
	if err != nil {
		if restored, ok := s.store.Rollback(optimistic.CorrelationID); ok {
			s.mu.Lock()
			s.compose = restored
			s.mu.Unlock()
		}
		return &SendFailure{CorrelationID: optimistic.CorrelationID, Err: err}
	}
	return nil
}

// SetTyping forwards the local typing state, edge-triggered.
func (s *ChatSession) SetTyping(isTyping bool) {
	s.typing.SetTyping(s.roomID, isTyping)
}

// RemoteTyping reports whether the other party is currently typing.
func (s *ChatSession) RemoteTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTyping
}

// Compose returns the restored draft after a failed send, clearing it.
func (s *ChatSession) Compose() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.compose
	s.compose = ""
	return text
}

// Revoked reports whether the server force-terminated the session, with
// the reason.
func (s *ChatSession) Revoked() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked, s.revokeReason
}

func (s *ChatSession) setOnClose(fn func()) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// Close leaves the room and stops the pump. Idempotent; called on every
// exit path, including navigation away, backgrounding, and terminal
// appointment states.
func (s *ChatSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.typing.SetTyping(s.roomID, false)
	s.sub.Close()
	if onClose != nil {
		onClose()
	}
}
