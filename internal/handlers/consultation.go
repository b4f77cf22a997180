package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"consult-service/gate"
	"consult-service/internal/models"
	"consult-service/internal/payments"
	"consult-service/internal/repositories"
	"consult-service/internal/telemetry"
	"consult-service/internal/ws"
)

// PaymentService is what the handlers need from the payments provider.
type PaymentService interface {
	Status(ctx context.Context, appointmentID int) (models.Payment, error)
	CreateInvoice(ctx context.Context, appointmentID int) (models.Payment, payments.Invoice, error)
	SubmitProof(ctx context.Context, appointmentID int, proofURL string) (models.Payment, error)
	Verify(ctx context.Context, paymentID int) (models.Payment, error)
	Reject(ctx context.Context, paymentID int) (models.Payment, error)
}

// ConsultationHandler serves the consultation access endpoints.
type ConsultationHandler struct {
	apptRepo repositories.AppointmentRepository
	roomRepo repositories.RoomRepository
	msgRepo  repositories.MessageRepository
	payments PaymentService
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewConsultationHandler builds a ConsultationHandler.
func NewConsultationHandler(
	apptRepo repositories.AppointmentRepository,
	roomRepo repositories.RoomRepository,
	msgRepo repositories.MessageRepository,
	paymentSvc PaymentService,
	hub *ws.Hub,
	audit *telemetry.AuditEmitter,
) *ConsultationHandler {
	return &ConsultationHandler{
		apptRepo: apptRepo,
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		payments: paymentSvc,
		hub:      hub,
		audit:    audit,
	}
}

// GetConsultation returns the consultation session descriptor for an
// appointment: room id, medium, participants, and the current gate
// decision. The client router drives its navigation off this response.
func (h *ConsultationHandler) GetConsultation(c *gin.Context) {
	appointmentID, err := strconv.Atoi(c.Param("appointment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return
	}

	userID := c.GetInt("userID")
	appt, err := h.apptRepo.GetAppointment(c.Request.Context(), appointmentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrAppointmentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "appointment not found"})
		return
	}
	if !appt.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	pay, err := h.payments.Status(c.Request.Context(), appointmentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load payment state"})
		return
	}

	decision := gate.Evaluate(appt, pay)

	var roomID string
	if appt.Method != nil {
		room, err := h.roomRepo.GetRoomForAppointment(c.Request.Context(), appointmentID)
		if err != nil {
			if errors.Is(err, repositories.ErrRoomNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "room unavailable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
			return
		}
		roomID = room.RoomID
	}

	c.JSON(http.StatusOK, gin.H{
		"appointment_id": appt.ID,
		"room_id":        roomID,
		"method":         appt.Method,
		"decision":       decision,
		"patient": models.Participant{
			ID: appt.PatientID, Name: appt.PatientName, Avatar: appt.PatientAvatar,
		},
		"optometrist": models.Participant{
			ID: appt.OptometristID, Name: appt.OptometristName, Avatar: appt.OptometristAvatar,
		},
	})
}

// GetRoomMessages returns the full ordered history for a room. Fetched
// once per room open; the live stream continues over the websocket.
func (h *ConsultationHandler) GetRoomMessages(c *gin.Context) {
	roomID := c.Param("room_id")

	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	appt, err := h.apptRepo.GetAppointment(c.Request.Context(), room.AppointmentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !appt.HasParticipant(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.msgRepo.GetRoomMessages(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// CompleteAppointment is the optometrist-initiated end of a consultation.
// The appointment becomes terminal and any open room is closed.
func (h *ConsultationHandler) CompleteAppointment(c *gin.Context) {
	appointmentID, err := strconv.Atoi(c.Param("appointment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return
	}

	userID := c.GetInt("userID")
	appt, err := h.apptRepo.GetAppointment(c.Request.Context(), appointmentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrAppointmentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "appointment not found"})
		return
	}
	if appt.OptometristID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the optometrist can complete"})
		return
	}

	if err := h.apptRepo.CompleteAppointment(c.Request.Context(), appointmentID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrAppointmentNotFound) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": "could not complete appointment"})
		return
	}

	if h.hub != nil {
		if room, err := h.roomRepo.GetRoomForAppointment(c.Request.Context(), appointmentID); err == nil {
			h.hub.CloseRoom(room.RoomID, "appointment_completed")
		}
	}

	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("appointment %d completed", appointmentID),
		requestIDFromContext(c), userIDFromContext(c))

	c.Status(http.StatusNoContent)
}
