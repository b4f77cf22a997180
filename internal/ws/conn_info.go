package ws

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ConnInfo describes one authenticated websocket connection for
// observability purposes.
type ConnInfo struct {
	ConnID      string
	UserID      int
	UserName    string
	UserAvatar  string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnID mints a random identifier for the lifetime of one connection.
func newConnID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "conn-unidentified"
	}
	return hex.EncodeToString(buf[:])
}
