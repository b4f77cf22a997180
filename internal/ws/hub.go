package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"consult-service/internal/models"
	"consult-service/internal/observability"
)

// Client is one authenticated websocket connection. All writes go through
// WriteEvent so concurrent broadcasts never interleave frames.
type Client struct {
	conn    *websocket.Conn
	info    ConnInfo
	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

// Info returns the connection's identity metadata.
func (c *Client) Info() ConnInfo { return c.info }

// WriteEvent sends one protocol event to the peer.
func (c *Client) WriteEvent(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// ReadEvent blocks until the peer sends the next protocol event.
func (c *Client) ReadEvent() (models.Event, error) {
	var event models.Event
	err := c.conn.ReadJSON(&event)
	return event, err
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Hub maintains consultation room memberships. One room per appointment;
// membership is idempotent per connection.
type Hub struct {
	rooms  map[string]map[*Client]bool
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool), logger: logger}
}

// Join adds the client to a room. Re-joining is a no-op; the return value
// reports whether this call created a new membership.
func (h *Hub) Join(roomID string, cl *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	if h.rooms[roomID][cl] {
		return false
	}
	h.rooms[roomID][cl] = true
	observability.SetActiveRooms(len(h.rooms))
	return true
}

// Leave removes the client from a room.
func (h *Hub) Leave(roomID string, cl *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(roomID, cl)
}

// RemoveClient removes the client from every room it joined. Called on
// every disconnect path.
func (h *Hub) RemoveClient(cl *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.rooms {
		h.removeLocked(roomID, cl)
	}
}

func (h *Hub) removeLocked(roomID string, cl *Client) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, cl)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	observability.SetActiveRooms(len(h.rooms))
}

// IsMember reports whether the client has joined the room.
func (h *Hub) IsMember(roomID string, cl *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][cl]
}

// RoomMemberCount returns the number of active members in a room.
func (h *Hub) RoomMemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastMessage sends a confirmed message to every member of the room,
// including the sender, whose echo carries the correlation id back.
func (h *Hub) BroadcastMessage(roomID string, msg models.Message) {
	event := models.Event{Type: models.EventNewMessage, RoomID: roomID, Message: &msg}
	h.broadcast(roomID, event, nil)
}

// BroadcastTyping forwards a transient typing signal to everyone except the
// originator. Never persisted.
func (h *Hub) BroadcastTyping(roomID string, state models.TypingState, from *Client) {
	event := models.Event{Type: models.EventTyping, RoomID: roomID, Typing: &state}
	h.broadcast(roomID, event, from)
}

// BroadcastUserJoined announces a new member to the rest of the room.
func (h *Hub) BroadcastUserJoined(roomID string, userID int, userName string, from *Client) {
	event := models.Event{Type: models.EventUserJoined, RoomID: roomID, UserID: userID, UserName: userName}
	h.broadcast(roomID, event, from)
}

// CloseRoom force-terminates an active session: every member receives a
// session_revoked event and is dropped from the room. Used when payment
// state regresses or the appointment reaches a terminal state.
func (h *Hub) CloseRoom(roomID string, reason string) {
	h.mu.Lock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for cl := range h.rooms[roomID] {
		members = append(members, cl)
	}
	delete(h.rooms, roomID)
	observability.SetActiveRooms(len(h.rooms))
	h.mu.Unlock()

	event := models.Event{Type: models.EventSessionRevoked, RoomID: roomID, Reason: reason}
	for _, cl := range members {
		if err := cl.WriteEvent(event); err != nil {
			h.logger.Warn("websocket write error", zap.Error(err))
			cl.Close()
		}
	}
	observability.IncWSEvent("session_revoked")
}

func (h *Hub) broadcast(roomID string, event models.Event, except *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for cl := range h.rooms[roomID] {
		if cl != except {
			members = append(members, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range members {
		if err := cl.WriteEvent(event); err != nil {
			h.logger.Warn("websocket write error", zap.Error(err))
			cl.Close()
			h.Leave(roomID, cl)
			h.publishWSError(roomID, cl, err)
		}
	}
}

func (h *Hub) publishWSError(roomID string, cl *Client, err error) {
	info := cl.Info()
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room_id":     roomID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.consultations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
