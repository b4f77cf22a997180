package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"consult-service/internal/models"
	"consult-service/internal/payments"
)

type AppointmentRepositoryMock struct {
	mock.Mock
}

func (m *AppointmentRepositoryMock) GetAppointment(ctx context.Context, appointmentID int) (models.Appointment, error) {
	args := m.Called(ctx, appointmentID)
	var appt models.Appointment
	if val := args.Get(0); val != nil {
		appt = val.(models.Appointment)
	}
	return appt, args.Error(1)
}

func (m *AppointmentRepositoryMock) CompleteAppointment(ctx context.Context, appointmentID int) error {
	args := m.Called(ctx, appointmentID)
	return args.Error(0)
}

type PaymentRepositoryMock struct {
	mock.Mock
}

func (m *PaymentRepositoryMock) GetByAppointment(ctx context.Context, appointmentID int) (models.Payment, error) {
	args := m.Called(ctx, appointmentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentRepositoryMock) GetPayment(ctx context.Context, paymentID int) (models.Payment, error) {
	args := m.Called(ctx, paymentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentRepositoryMock) SetStatus(ctx context.Context, paymentID int, status models.PaymentStatus) (models.Payment, error) {
	args := m.Called(ctx, paymentID, status)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentRepositoryMock) AttachInvoice(ctx context.Context, paymentID int, invoiceID string) error {
	args := m.Called(ctx, paymentID, invoiceID)
	return args.Error(0)
}

func (m *PaymentRepositoryMock) AttachProof(ctx context.Context, paymentID int, proofURL string) (models.Payment, error) {
	args := m.Called(ctx, paymentID, proofURL)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentRepositoryMock) ListNonTerminal(ctx context.Context) ([]models.Payment, error) {
	args := m.Called(ctx)
	var pays []models.Payment
	if val := args.Get(0); val != nil {
		pays = val.([]models.Payment)
	}
	return pays, args.Error(1)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.ConsultationRoom, error) {
	args := m.Called(ctx, roomID)
	var room models.ConsultationRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ConsultationRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error) {
	args := m.Called(ctx, appointmentID)
	var room models.ConsultationRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ConsultationRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) CreateRoomForAppointment(ctx context.Context, appointmentID int) (models.ConsultationRoom, error) {
	args := m.Called(ctx, appointmentID)
	var room models.ConsultationRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ConsultationRoom)
	}
	return room, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID string, from models.Participant, text, correlationID string) (models.Message, error) {
	args := m.Called(ctx, roomID, from, text, correlationID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetRoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type PaymentServiceMock struct {
	mock.Mock
}

func (m *PaymentServiceMock) Status(ctx context.Context, appointmentID int) (models.Payment, error) {
	args := m.Called(ctx, appointmentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentServiceMock) CreateInvoice(ctx context.Context, appointmentID int) (models.Payment, payments.Invoice, error) {
	args := m.Called(ctx, appointmentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	var inv payments.Invoice
	if val := args.Get(1); val != nil {
		inv = val.(payments.Invoice)
	}
	return pay, inv, args.Error(2)
}

func (m *PaymentServiceMock) SubmitProof(ctx context.Context, appointmentID int, proofURL string) (models.Payment, error) {
	args := m.Called(ctx, appointmentID, proofURL)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentServiceMock) Verify(ctx context.Context, paymentID int) (models.Payment, error) {
	args := m.Called(ctx, paymentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

func (m *PaymentServiceMock) Reject(ctx context.Context, paymentID int) (models.Payment, error) {
	args := m.Called(ctx, paymentID)
	var pay models.Payment
	if val := args.Get(0); val != nil {
		pay = val.(models.Payment)
	}
	return pay, args.Error(1)
}

type InvoiceClientMock struct {
	mock.Mock
}

func (m *InvoiceClientMock) CreateInvoice(ctx context.Context, externalRef string, amount int64, deadline time.Time) (payments.Invoice, error) {
	args := m.Called(ctx, externalRef, amount, deadline)
	var inv payments.Invoice
	if val := args.Get(0); val != nil {
		inv = val.(payments.Invoice)
	}
	return inv, args.Error(1)
}

func (m *InvoiceClientMock) GetInvoice(ctx context.Context, invoiceID string) (payments.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	var inv payments.Invoice
	if val := args.Get(0); val != nil {
		inv = val.(payments.Invoice)
	}
	return inv, args.Error(1)
}
