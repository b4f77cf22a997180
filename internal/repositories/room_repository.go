package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"consult-service/internal/models"
)

var ErrRoomNotFound = errors.New("consultation room not found")

// RoomRepository maps appointments to their consultation rooms.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (models.ConsultationRoom, error)
	GetRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error)
	CreateRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error)
}

// RoomRepo is a sqlx-backed repository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.ConsultationRoom, error) {
	var room models.ConsultationRoom
	err := r.db.GetContext(ctx, &room, `SELECT room_id, appointment_id, created_at FROM consultation_rooms WHERE room_id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConsultationRoom{}, ErrRoomNotFound
	}
	return room, err
}

// GetRoomForAppointment fetches the room provisioned for an appointment.
func (r *RoomRepo) GetRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error) {
	var room models.ConsultationRoom
	err := r.db.GetContext(ctx, &room, `SELECT room_id, appointment_id, created_at FROM consultation_rooms WHERE appointment_id=$1`, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConsultationRoom{}, ErrRoomNotFound
	}
	return room, err
}

// CreateRoomForAppointment provisions the room, returning the existing one
// if the appointment already has it.
func (r *RoomRepo) CreateRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error) {
	room, err := r.GetRoomForAppointment(ctx, appointmentID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return models.ConsultationRoom{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO consultation_rooms (room_id, appointment_id) VALUES ($1, $2)
         ON CONFLICT (appointment_id) DO UPDATE SET appointment_id = EXCLUDED.appointment_id
         RETURNING room_id, appointment_id, created_at`,
		uuid.NewString(), appointmentID).StructScan(&room)
	return room, err
}
