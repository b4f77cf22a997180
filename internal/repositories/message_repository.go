package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"consult-service/internal/models"
)

// MessageRepository persists the ordered room log.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID string, from models.Participant, text, correlationID string) (models.Message, error)
	GetRoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a confirmed message. The correlation id from the
// optimistic client write is persisted so the echo can carry it back.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID string, from models.Participant, text, correlationID string) (models.Message, error) {
	msg := models.Message{RoomID: roomID, From: from, Text: text, CorrelationID: correlationID}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, sender_id, sender_name, sender_avatar, text, correlation_id)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		roomID, from.ID, from.Name, from.Avatar, text, correlationID).
		Scan(&msg.ID, &msg.CreatedAt)
	return msg, err
}

// GetRoomMessages returns the full room history ordered by creation time,
// arrival order breaking ties.
func (r *MessageRepo) GetRoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, room_id, sender_id, sender_name, sender_avatar, text, correlation_id, created_at
         FROM messages WHERE room_id=$1 ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.From.ID, &m.From.Name, &m.From.Avatar, &m.Text, &m.CorrelationID, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
