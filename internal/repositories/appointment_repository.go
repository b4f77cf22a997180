package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"consult-service/internal/models"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// AppointmentRepository reads appointment state owned by the booking
// collaborator, plus the one transition this service performs (complete).
type AppointmentRepository interface {
	GetAppointment(ctx context.Context, appointmentID int) (models.Appointment, error)
	CompleteAppointment(ctx context.Context, appointmentID int) error
}

// AppointmentRepo is a sqlx-backed repository.
type AppointmentRepo struct {
	db *sqlx.DB
}

// NewAppointmentRepo constructs an AppointmentRepo.
func NewAppointmentRepo(db *sqlx.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

const appointmentColumns = `id, patient_id, patient_name, patient_avatar, optometrist_id, optometrist_name, optometrist_avatar, status, type, method, created_at`

// GetAppointment fetches an appointment by id.
func (r *AppointmentRepo) GetAppointment(ctx context.Context, appointmentID int) (models.Appointment, error) {
	var appt models.Appointment
	err := r.db.GetContext(ctx, &appt, `SELECT `+appointmentColumns+` FROM appointments WHERE id=$1`, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Appointment{}, ErrAppointmentNotFound
	}
	return appt, err
}

// CompleteAppointment marks an appointment completed. Only confirmed or
// ongoing appointments can complete.
func (r *AppointmentRepo) CompleteAppointment(ctx context.Context, appointmentID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status='completed' WHERE id=$1 AND status IN ('confirmed','ongoing')`,
		appointmentID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
