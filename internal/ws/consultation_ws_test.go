package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"consult-service/internal/auth"
	"consult-service/internal/mocks"
	"consult-service/internal/models"
	"consult-service/internal/repositories"
)

const testSecret = "ws-test-secret"

type wsFixture struct {
	server   *httptest.Server
	hub      *Hub
	verifier *auth.Verifier
	roomRepo *mocks.RoomRepositoryMock
	apptRepo *mocks.AppointmentRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	payments *mocks.PaymentServiceMock
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		verifier: auth.NewVerifier(testSecret),
		roomRepo: new(mocks.RoomRepositoryMock),
		apptRepo: new(mocks.AppointmentRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		payments: new(mocks.PaymentServiceMock),
	}

	f.hub = NewHub(zap.NewNop())
	handler := NewConsultationWSHandler(f.hub, f.roomRepo, f.apptRepo, f.msgRepo, f.payments, f.verifier, zap.NewNop())

	router := gin.New()
	router.GET("/ws", handler.Handle)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, userID int, name string) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(userID, auth.RolePatient, name, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForMembers blocks until the room reaches the expected size. Joins
// arrive on independent connections, so tests order them explicitly.
func (f *wsFixture) waitForMembers(t *testing.T, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.hub.RoomMemberCount(roomID) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func writeEvent(t *testing.T, conn *websocket.Conn, event models.Event) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func onlineChatAppointment(id, patientID, optometristID int) models.Appointment {
	method := models.MethodChat
	return models.Appointment{
		ID:            id,
		PatientID:     patientID,
		PatientName:   "Rani",
		OptometristID: optometristID,
		Status:        models.AppointmentOngoing,
		Type:          models.AppointmentOnline,
		Method:        &method,
	}
}

// allowJoin wires the fixture so both participants pass the session gate
// for the given room.
func (f *wsFixture) allowJoin(roomID string, appt models.Appointment) {
	f.roomRepo.On("GetRoom", mock.Anything, roomID).
		Return(models.ConsultationRoom{RoomID: roomID, AppointmentID: appt.ID}, nil)
	f.apptRepo.On("GetAppointment", mock.Anything, appt.ID).Return(appt, nil)
	f.payments.On("Status", mock.Anything, appt.ID).
		Return(models.Payment{AppointmentID: appt.ID, Status: models.PaymentPaid}, nil)
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=not-a-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinAnnouncesToExistingMembers(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.allowJoin("room-1", appt)

	patient := f.dial(t, 10, "Rani")
	writeEvent(t, patient, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 1)

	optometrist := f.dial(t, 20, "drg. Sari")
	writeEvent(t, optometrist, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})

	event := readEvent(t, patient)
	assert.Equal(t, models.EventUserJoined, event.Type)
	assert.Equal(t, "room-1", event.RoomID)
	assert.Equal(t, 20, event.UserID)
}

func TestJoinDeniedWhenUnpaid(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.roomRepo.On("GetRoom", mock.Anything, "room-1").
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).Return(appt, nil)
	f.payments.On("Status", mock.Anything, 1).
		Return(models.Payment{AppointmentID: 1, Status: models.PaymentUnpaid}, nil)

	conn := f.dial(t, 10, "Rani")
	writeEvent(t, conn, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "PAYMENT_REQUIRED", event.Reason)
}

func TestJoinDeniedForNonParticipant(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.roomRepo.On("GetRoom", mock.Anything, "room-1").
		Return(models.ConsultationRoom{RoomID: "room-1", AppointmentID: 1}, nil)
	f.apptRepo.On("GetAppointment", mock.Anything, 1).Return(appt, nil)

	stranger := f.dial(t, 99, "Stranger")
	writeEvent(t, stranger, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})

	event := readEvent(t, stranger)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "not a participant", event.Reason)
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newWSFixture(t)
	f.roomRepo.On("GetRoom", mock.Anything, "room-missing").
		Return(nil, repositories.ErrRoomNotFound)

	conn := f.dial(t, 10, "Rani")
	writeEvent(t, conn, models.Event{Type: models.EventJoinRoom, RoomID: "room-missing"})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "room unavailable", event.Reason)
}

func TestRoomLookupOutlivesHandshakeRequest(t *testing.T) {
	f := newWSFixture(t)
	ctxState := make(chan error, 1)
	f.roomRepo.On("GetRoom", mock.Anything, "room-missing").
		Run(func(args mock.Arguments) {
			ctxState <- args.Get(0).(context.Context).Err()
		}).
		Return(nil, repositories.ErrRoomNotFound)

	conn := f.dial(t, 10, "Rani")
	time.Sleep(50 * time.Millisecond) // the upgrade handler has long returned
	writeEvent(t, conn, models.Event{Type: models.EventJoinRoom, RoomID: "room-missing"})
	readEvent(t, conn)

	select {
	case err := <-ctxState:
		assert.NoError(t, err, "repository calls must see a live context after the upgrade")
	case <-time.After(time.Second):
		t.Fatal("room lookup never ran")
	}
}

func TestHandshakeAcceptsAuthorizationHeader(t *testing.T) {
	f := newWSFixture(t)
	token, err := f.verifier.Issue(10, auth.RolePatient, "Rani", time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"

	// Both the bare token and the Bearer form authenticate.
	for _, value := range []string{token, "Bearer " + token} {
		header := http.Header{}
		header.Set("Authorization", value)
		conn, _, err := websocket.DefaultDialer.Dial(url, header)
		require.NoError(t, err, "header %q", value)
		conn.Close()
	}
}

func TestSendMessageEchoesCorrelationID(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.allowJoin("room-1", appt)
	stored := models.Message{
		ID:            77,
		RoomID:        "room-1",
		From:          models.Participant{ID: 10, Name: "Rani"},
		Text:          "hello",
		CorrelationID: "temp-abc",
		CreatedAt:     time.Now(),
	}
	f.msgRepo.On("CreateMessage", mock.Anything, "room-1", mock.Anything, "hello", "temp-abc").
		Return(stored, nil)

	patient := f.dial(t, 10, "Rani")
	writeEvent(t, patient, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 1)
	optometrist := f.dial(t, 20, "drg. Sari")
	writeEvent(t, optometrist, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 2)
	readEvent(t, patient) // user_joined for the optometrist

	writeEvent(t, patient, models.Event{
		Type:          models.EventSendMessage,
		RoomID:        "room-1",
		Text:          "hello",
		CorrelationID: "temp-abc",
	})

	// Both the sender echo and the peer broadcast carry the stored message.
	senderEcho := readEvent(t, patient)
	require.Equal(t, models.EventNewMessage, senderEcho.Type)
	require.NotNil(t, senderEcho.Message)
	assert.Equal(t, 77, senderEcho.Message.ID)
	assert.Equal(t, "temp-abc", senderEcho.Message.CorrelationID)

	peerCopy := readEvent(t, optometrist)
	require.Equal(t, models.EventNewMessage, peerCopy.Type)
	assert.Equal(t, 77, peerCopy.Message.ID)

	f.msgRepo.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, 10, "Rani")
	writeEvent(t, conn, models.Event{Type: models.EventSendMessage, RoomID: "room-1", Text: "hi"})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "not in room", event.Reason)
	f.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmptyMessageIsRejected(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.allowJoin("room-1", appt)

	conn := f.dial(t, 10, "Rani")
	writeEvent(t, conn, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	writeEvent(t, conn, models.Event{Type: models.EventSendMessage, RoomID: "room-1", Text: ""})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "empty message", event.Reason)
}

func TestTypingReachesPeerOnlyAndIsNotPersisted(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.allowJoin("room-1", appt)

	patient := f.dial(t, 10, "Rani")
	writeEvent(t, patient, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 1)
	optometrist := f.dial(t, 20, "drg. Sari")
	writeEvent(t, optometrist, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 2)
	readEvent(t, patient) // user_joined

	writeEvent(t, patient, models.Event{
		Type:   models.EventTyping,
		RoomID: "room-1",
		Typing: &models.TypingState{RoomID: "room-1", IsTyping: true},
	})

	event := readEvent(t, optometrist)
	require.Equal(t, models.EventTyping, event.Type)
	require.NotNil(t, event.Typing)
	assert.Equal(t, 10, event.Typing.UserID)
	assert.True(t, event.Typing.IsTyping)

	// The sender must not receive their own signal back, and nothing is
	// written to the log.
	patient.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var echo models.Event
	assert.Error(t, patient.ReadJSON(&echo), "typing must not echo to the sender")
	f.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCloseRoomRevokesEveryMember(t *testing.T) {
	f := newWSFixture(t)
	appt := onlineChatAppointment(1, 10, 20)
	f.allowJoin("room-1", appt)

	patient := f.dial(t, 10, "Rani")
	writeEvent(t, patient, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 1)
	optometrist := f.dial(t, 20, "drg. Sari")
	writeEvent(t, optometrist, models.Event{Type: models.EventJoinRoom, RoomID: "room-1"})
	f.waitForMembers(t, "room-1", 2)
	readEvent(t, patient) // user_joined

	f.hub.CloseRoom("room-1", "payment_rejected")

	for _, conn := range []*websocket.Conn{patient, optometrist} {
		event := readEvent(t, conn)
		assert.Equal(t, models.EventSessionRevoked, event.Type)
		assert.Equal(t, "room-1", event.RoomID)
		assert.Equal(t, "payment_rejected", event.Reason)
	}
	assert.Equal(t, 0, f.hub.RoomMemberCount("room-1"))
}

func TestUnknownEventTypeReturnsError(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, 10, "Rani")
	writeEvent(t, conn, models.Event{Type: "subscribe", RoomID: "room-1"})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "unknown event type", event.Reason)
}
