package models

import "time"

// ConsultationRoom is the real-time channel for one appointment. It has no
// lifecycle of its own beyond the appointment's.
type ConsultationRoom struct {
	RoomID        string    `db:"room_id" json:"room_id"`
	AppointmentID int       `db:"appointment_id" json:"appointment_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TypingState is a transient presence signal. It is never persisted and
// never appears in room history.
type TypingState struct {
	RoomID   string `json:"room_id"`
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"is_typing"`
}
