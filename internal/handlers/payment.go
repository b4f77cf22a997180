package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"consult-service/internal/payments"
	"consult-service/internal/repositories"
	"consult-service/internal/telemetry"
)

// PaymentHandler serves payment state and the two settlement flows:
// automated invoicing and manual bank transfer with admin review.
type PaymentHandler struct {
	apptRepo repositories.AppointmentRepository
	payments PaymentService
	audit    *telemetry.AuditEmitter
}

// NewPaymentHandler builds a PaymentHandler.
func NewPaymentHandler(apptRepo repositories.AppointmentRepository, paymentSvc PaymentService, audit *telemetry.AuditEmitter) *PaymentHandler {
	return &PaymentHandler{apptRepo: apptRepo, payments: paymentSvc, audit: audit}
}

func (h *PaymentHandler) appointmentForCaller(c *gin.Context) (int, bool) {
	appointmentID, err := strconv.Atoi(c.Param("appointment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return 0, false
	}

	appt, err := h.apptRepo.GetAppointment(c.Request.Context(), appointmentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrAppointmentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "appointment not found"})
		return 0, false
	}
	if !appt.HasParticipant(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return 0, false
	}
	return appointmentID, true
}

// GetPayment returns the current payment state for an appointment.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	appointmentID, ok := h.appointmentForCaller(c)
	if !ok {
		return
	}

	pay, err := h.payments.Status(c.Request.Context(), appointmentID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, repositories.ErrPaymentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to load payment state"})
		return
	}

	c.JSON(http.StatusOK, pay)
}

// CreateInvoice opens (or returns the existing) invoice with the external
// provider for the appointment's payment.
func (h *PaymentHandler) CreateInvoice(c *gin.Context) {
	appointmentID, ok := h.appointmentForCaller(c)
	if !ok {
		return
	}

	pay, inv, err := h.payments.CreateInvoice(c.Request.Context(), appointmentID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, payments.ErrInvoiceInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "invoice creation already in progress"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "invoice provider unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": pay, "invoice": inv})
}

// SubmitProof records a manual bank-transfer proof for admin review.
func (h *PaymentHandler) SubmitProof(c *gin.Context) {
	appointmentID, ok := h.appointmentForCaller(c)
	if !ok {
		return
	}

	var req struct {
		ProofURL string `json:"proof_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pay, err := h.payments.SubmitProof(c.Request.Context(), appointmentID, req.ProofURL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrPaymentNotFound) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": "could not record transfer proof"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("transfer proof submitted for payment %d", pay.ID),
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, pay)
}

// VerifyPayment is the admin approval of a manual transfer.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	h.review(c, true)
}

// RejectPayment is the admin denial of a manual transfer or a chargeback.
// Rejecting a settled payment forcibly terminates any open session.
func (h *PaymentHandler) RejectPayment(c *gin.Context) {
	h.review(c, false)
}

func (h *PaymentHandler) review(c *gin.Context, approve bool) {
	paymentID, err := strconv.Atoi(c.Param("payment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var pay interface{}
	var verb string
	if approve {
		pay, err = h.payments.Verify(c.Request.Context(), paymentID)
		verb = "verified"
	} else {
		pay, err = h.payments.Reject(c.Request.Context(), paymentID)
		verb = "rejected"
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrPaymentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not review payment"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("payment %d %s", paymentID, verb),
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, pay)
}
