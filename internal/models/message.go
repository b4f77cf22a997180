package models

import "time"

// Participant identifies a message sender as shown in the room.
type Participant struct {
	ID     int    `db:"sender_id" json:"id"`
	Name   string `db:"sender_name" json:"name"`
	Avatar string `db:"sender_avatar" json:"avatar,omitempty"`
}

// Message is one entry in a room's persisted log. CorrelationID is the
// client-generated id attached to the optimistic send and echoed back on
// the confirmed broadcast so the sender can reconcile without heuristics.
type Message struct {
	ID            int         `db:"id" json:"id"`
	RoomID        string      `db:"room_id" json:"room_id"`
	From          Participant `json:"from"`
	Text          string      `db:"text" json:"text"`
	CorrelationID string      `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// Pending reports whether the message is a local optimistic entry that has
// not yet been confirmed by the server.
func (m Message) Pending() bool {
	return m.ID == 0 && m.CorrelationID != ""
}
