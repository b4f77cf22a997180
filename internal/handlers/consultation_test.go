package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-service/internal/mocks"
	"consult-service/internal/models"
	"consult-service/internal/repositories"
)

type consultationFixture struct {
	apptRepo   *mocks.AppointmentRepositoryMock
	roomRepo   *mocks.RoomRepositoryMock
	msgRepo    *mocks.MessageRepositoryMock
	paymentSvc *mocks.PaymentServiceMock
	router     *gin.Engine
}

func newConsultationFixture(userID int) *consultationFixture {
	gin.SetMode(gin.TestMode)

	f := &consultationFixture{
		apptRepo:   new(mocks.AppointmentRepositoryMock),
		roomRepo:   new(mocks.RoomRepositoryMock),
		msgRepo:    new(mocks.MessageRepositoryMock),
		paymentSvc: new(mocks.PaymentServiceMock),
	}
	handler := NewConsultationHandler(f.apptRepo, f.roomRepo, f.msgRepo, f.paymentSvc, nil, nil)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
	})
	f.router.GET("/appointments/:appointment_id/consultation", handler.GetConsultation)
	f.router.GET("/rooms/:room_id/messages", handler.GetRoomMessages)
	f.router.POST("/appointments/:appointment_id/complete", handler.CompleteAppointment)
	return f
}

func (f *consultationFixture) perform(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func chatAppointment(id, patientID, optometristID int, status models.AppointmentStatus) models.Appointment {
	method := models.MethodChat
	return models.Appointment{
		ID:              id,
		PatientID:       patientID,
		PatientName:     "Rani",
		OptometristID:   optometristID,
		OptometristName: "drg. Sari",
		Status:          status,
		Type:            models.AppointmentOnline,
		Method:          &method,
	}
}

func TestGetConsultationAllowed(t *testing.T) {
	f := newConsultationFixture(10)
	appt := chatAppointment(1, 10, 20, models.AppointmentConfirmed)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).Return(appt, nil)
	f.paymentSvc.On("Status", mock.Anything, 1).
		Return(models.Payment{AppointmentID: 1, Status: models.PaymentPaid}, nil)
	f.roomRepo.On("GetRoomForAppointment", mock.Anything, 1).
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)

	w := f.perform(http.MethodGet, "/appointments/1/consultation")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RoomID   string `json:"room_id"`
		Method   string `json:"method"`
		Decision struct {
			Allowed bool   `json:"allowed"`
			Medium  string `json:"medium"`
			Reason  string `json:"reason"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "room-1", body.RoomID)
	assert.Equal(t, "chat", body.Method)
	assert.True(t, body.Decision.Allowed)
	assert.Equal(t, "ALLOWED", body.Decision.Reason)
}

func TestGetConsultationDeniedIsNotAnError(t *testing.T) {
	f := newConsultationFixture(10)
	appt := chatAppointment(1, 10, 20, models.AppointmentConfirmed)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).Return(appt, nil)
	f.paymentSvc.On("Status", mock.Anything, 1).
		Return(models.Payment{AppointmentID: 1, Status: models.PaymentUnpaid}, nil)
	f.roomRepo.On("GetRoomForAppointment", mock.Anything, 1).
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)

	w := f.perform(http.MethodGet, "/appointments/1/consultation")

	require.Equal(t, http.StatusOK, w.Code, "a denied gate is a routing outcome, not an HTTP failure")
	var body struct {
		Decision struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Decision.Allowed)
	assert.Equal(t, "PAYMENT_REQUIRED", body.Decision.Reason)
}

func TestGetConsultationForbiddenForNonParticipants(t *testing.T) {
	f := newConsultationFixture(99)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentConfirmed), nil)

	w := f.perform(http.MethodGet, "/appointments/1/consultation")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetConsultationUnknownAppointment(t *testing.T) {
	f := newConsultationFixture(10)
	f.apptRepo.On("GetAppointment", mock.Anything, 404).
		Return(nil, repositories.ErrAppointmentNotFound)

	w := f.perform(http.MethodGet, "/appointments/404/consultation")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetConsultationRoomUnavailable(t *testing.T) {
	f := newConsultationFixture(10)
	appt := chatAppointment(1, 10, 20, models.AppointmentConfirmed)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).Return(appt, nil)
	f.paymentSvc.On("Status", mock.Anything, 1).
		Return(models.Payment{AppointmentID: 1, Status: models.PaymentPaid}, nil)
	f.roomRepo.On("GetRoomForAppointment", mock.Anything, 1).
		Return(nil, repositories.ErrRoomNotFound)

	w := f.perform(http.MethodGet, "/appointments/1/consultation")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "room unavailable")
}

func TestGetRoomMessagesReturnsOrderedHistory(t *testing.T) {
	f := newConsultationFixture(10)
	f.roomRepo.On("GetRoom", mock.Anything, "room-1").
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentOngoing), nil)
	now := time.Now()
	f.msgRepo.On("GetRoomMessages", mock.Anything, "room-1").Return([]models.Message{
		{ID: 1, RoomID: "room-1", Text: "first", CreatedAt: now.Add(-time.Minute)},
		{ID: 2, RoomID: "room-1", Text: "second", CreatedAt: now},
	}, nil)

	w := f.perform(http.MethodGet, "/rooms/room-1/messages")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "first", body.Messages[0].Text)
}

func TestGetRoomMessagesForbiddenForNonParticipants(t *testing.T) {
	f := newConsultationFixture(99)
	f.roomRepo.On("GetRoom", mock.Anything, "room-1").
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentOngoing), nil)

	w := f.perform(http.MethodGet, "/rooms/room-1/messages")

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.msgRepo.AssertNotCalled(t, "GetRoomMessages", mock.Anything, mock.Anything)
}

func TestGetRoomMessagesUnknownRoom(t *testing.T) {
	f := newConsultationFixture(10)
	f.roomRepo.On("GetRoom", mock.Anything, "room-missing").
		Return(nil, repositories.ErrRoomNotFound)

	w := f.perform(http.MethodGet, "/rooms/room-missing/messages")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteAppointmentByOptometrist(t *testing.T) {
	f := newConsultationFixture(20)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentOngoing), nil)
	f.apptRepo.On("CompleteAppointment", mock.Anything, 1).Return(nil)

	w := f.perform(http.MethodPost, "/appointments/1/complete")

	assert.Equal(t, http.StatusNoContent, w.Code)
	f.apptRepo.AssertCalled(t, "CompleteAppointment", mock.Anything, 1)
}

func TestCompleteAppointmentForbiddenForPatient(t *testing.T) {
	f := newConsultationFixture(10)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentOngoing), nil)

	w := f.perform(http.MethodPost, "/appointments/1/complete")

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.apptRepo.AssertNotCalled(t, "CompleteAppointment", mock.Anything, mock.Anything)
}

func TestCompleteAppointmentConflictWhenAlreadyTerminal(t *testing.T) {
	f := newConsultationFixture(20)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).
		Return(chatAppointment(1, 10, 20, models.AppointmentCompleted), nil)
	f.apptRepo.On("CompleteAppointment", mock.Anything, 1).
		Return(repositories.ErrAppointmentNotFound)

	w := f.perform(http.MethodPost, "/appointments/1/complete")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCompleteAppointmentInvalidID(t *testing.T) {
	f := newConsultationFixture(20)

	w := f.perform(http.MethodPost, "/appointments/abc/complete")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
