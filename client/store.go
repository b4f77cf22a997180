package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"consult-service/internal/models"
)

// MessageStore is the ordered, deduplicated log of one room. Optimistic
// local writes appear immediately with a provisional wall-clock timestamp
// and are replaced in place, never appended twice, once the confirmed echo
// arrives. The visible log is always sorted by created_at, ties broken by
// arrival order.
type MessageStore struct {
	roomID string
	self   models.Participant

	mu      sync.Mutex
	entries []storeEntry
	seq     int
}

type storeEntry struct {
	msg models.Message
	seq int // arrival order, the tiebreak for equal timestamps
}

// NewMessageStore creates the store for a room, with self identifying the
// local sender.
func NewMessageStore(roomID string, self models.Participant) *MessageStore {
	return &MessageStore{roomID: roomID, self: self}
}

// Seed replaces the log with the one-shot history fetch.
func (s *MessageStore) Seed(history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
	s.seq = 0
	for _, msg := range history {
		s.insertLocked(msg)
	}
}

// AppendOptimistic records a local send before the server confirms it.
// The returned message carries the client-generated correlation id that
// the confirmed echo must echo back.
func (s *MessageStore) AppendOptimistic(text string) models.Message {
	msg := models.Message{
		RoomID:        s.roomID,
		From:          s.self,
		Text:          text,
		CorrelationID: "temp-" + uuid.NewString(),
		CreatedAt:     time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(msg)
	return msg
}

// OnRemote folds a server event into the log: a confirmed echo of our own
// optimistic entry replaces it in place (exact correlation-id lookup);
// anything else appends as a new remote message.
func (s *MessageStore) OnRemote(msg models.Message) {
	if msg.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CorrelationID != "" {
		for i := range s.entries {
			if s.entries[i].msg.Pending() && s.entries[i].msg.CorrelationID == msg.CorrelationID {
				s.entries[i].msg = msg
				s.sortLocked()
				return
			}
		}
	}
	s.insertLocked(msg)
}

// Rollback removes an unconfirmed optimistic entry after a failed
// transmission and returns its text so the compose field can be restored.
func (s *MessageStore) Rollback(correlationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].msg.Pending() && s.entries[i].msg.CorrelationID == correlationID {
			text := s.entries[i].msg.Text
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return text, true
		}
	}
	return "", false
}

// Messages returns the rendered log in order.
func (s *MessageStore) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of log entries.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MessageStore) insertLocked(msg models.Message) {
	s.seq++
	s.entries = append(s.entries, storeEntry{msg: msg, seq: s.seq})
	s.sortLocked()
}

func (s *MessageStore) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		if s.entries[i].msg.CreatedAt.Equal(s.entries[j].msg.CreatedAt) {
			return s.entries[i].seq < s.entries[j].seq
		}
		return s.entries[i].msg.CreatedAt.Before(s.entries[j].msg.CreatedAt)
	})
}
