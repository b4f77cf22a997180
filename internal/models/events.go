package models

// Event types carried over the websocket transport. Client-to-server types
// drive the room protocol; server-to-client types are broadcasts.
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventSendMessage    = "sendMessage"
	EventNewMessage     = "newMessage"
	EventTyping         = "typing"
	EventUserJoined     = "user_joined"
	EventError          = "error"
	EventSessionRevoked = "session_revoked"
)

// Event is the single envelope exchanged over a consultation websocket.
// Exactly one of the optional fields is set depending on Type.
type Event struct {
	Type          string       `json:"type"`
	RoomID        string       `json:"room_id,omitempty"`
	Message       *Message     `json:"message,omitempty"`
	Typing        *TypingState `json:"typing,omitempty"`
	UserID        int          `json:"user_id,omitempty"`
	UserName      string       `json:"user_name,omitempty"`
	Text          string       `json:"text,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}
