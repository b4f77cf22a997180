package models

import "time"

// AppointmentStatus is owned by the booking collaborator and only observed here.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentOngoing   AppointmentStatus = "ongoing"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether the appointment can no longer host a consultation.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

// AppointmentType distinguishes remote consultations from home visits.
type AppointmentType string

const (
	AppointmentOnline   AppointmentType = "online"
	AppointmentHomecare AppointmentType = "homecare"
)

// ConsultationMethod is the remote medium of an online appointment.
type ConsultationMethod string

const (
	MethodChat  ConsultationMethod = "chat"
	MethodVideo ConsultationMethod = "video"
)

// Appointment is a booked consultation between a patient and an optometrist.
// Method is nil for homecare appointments.
type Appointment struct {
	ID                int                 `db:"id" json:"id"`
	PatientID         int                 `db:"patient_id" json:"patient_id"`
	PatientName       string              `db:"patient_name" json:"patient_name"`
	PatientAvatar     string              `db:"patient_avatar" json:"patient_avatar,omitempty"`
	OptometristID     int                 `db:"optometrist_id" json:"optometrist_id"`
	OptometristName   string              `db:"optometrist_name" json:"optometrist_name"`
	OptometristAvatar string              `db:"optometrist_avatar" json:"optometrist_avatar,omitempty"`
	Status            AppointmentStatus   `db:"status" json:"status"`
	Type              AppointmentType     `db:"type" json:"type"`
	Method            *ConsultationMethod `db:"method" json:"method"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user is one of the two parties.
func (a Appointment) HasParticipant(userID int) bool {
	return a.PatientID == userID || a.OptometristID == userID
}
