package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"consult-service/gate"
	"consult-service/internal/auth"
	"consult-service/internal/models"
	"consult-service/internal/observability"
	"consult-service/internal/repositories"
)

// PaymentSource exposes the current payment state for an appointment. The
// payments provider implements it.
type PaymentSource interface {
	Status(ctx context.Context, appointmentID int) (models.Payment, error)
}

// ConsultationWSHandler owns the single websocket endpoint. Each client
// holds exactly one connection; rooms are joined in-band.
type ConsultationWSHandler struct {
	hub      *Hub
	roomRepo repositories.RoomRepository
	apptRepo repositories.AppointmentRepository
	msgRepo  repositories.MessageRepository
	payments PaymentSource
	verifier *auth.Verifier
	logger   *zap.Logger
}

// NewConsultationWSHandler constructs the handler.
func NewConsultationWSHandler(
	hub *Hub,
	roomRepo repositories.RoomRepository,
	apptRepo repositories.AppointmentRepository,
	msgRepo repositories.MessageRepository,
	payments PaymentSource,
	verifier *auth.Verifier,
	logger *zap.Logger,
) *ConsultationWSHandler {
	return &ConsultationWSHandler{
		hub:      hub,
		roomRepo: roomRepo,
		apptRepo: apptRepo,
		msgRepo:  msgRepo,
		payments: payments,
		verifier: verifier,
		logger:   logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, authenticates it, and runs the room
// protocol until the peer disconnects.
func (h *ConsultationWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("consult-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token != "" {
		const prefix = "Bearer "
		if len(token) > len(prefix) && strings.EqualFold(token[:len(prefix)], prefix) {
			token = token[len(prefix):]
		}
	} else {
		token = c.Query("token")
	}

	claims, err := h.verifier.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		UserName:    claims.Name,
		UserAvatar:  claims.Avatar,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	cl := NewClient(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, cl, "ws_connect", "")

	// The request context dies when this handler returns, but the
	// connection outlives it; the pump keeps the span values only.
	go h.readPump(context.WithoutCancel(ctx), cl)
}

func (h *ConsultationWSHandler) readPump(ctx context.Context, cl *Client) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(cl)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, cl, "ws_disconnect", closeReason)
		cl.Close()
	}()

	for {
		event, err := cl.ReadEvent()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, cl, "ws_error", closeReason)
			}
			return
		}

		switch event.Type {
		case models.EventJoinRoom:
			h.handleJoin(ctx, cl, event.RoomID)
		case models.EventLeaveRoom:
			h.hub.Leave(event.RoomID, cl)
			observability.IncWSEvent("leaveRoom")
		case models.EventSendMessage:
			h.handleSend(ctx, cl, event)
		case models.EventTyping:
			h.handleTyping(cl, event)
		default:
			h.writeError(cl, event.RoomID, "unknown event type")
		}
	}
}

// handleJoin re-evaluates the session gate on every join: a previously
// allowed session stops being joinable the moment state regresses.
func (h *ConsultationWSHandler) handleJoin(ctx context.Context, cl *Client, roomID string) {
	room, err := h.roomRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			h.writeError(cl, roomID, "room unavailable")
		} else {
			h.writeError(cl, roomID, "failed to load room")
		}
		return
	}

	appt, err := h.apptRepo.GetAppointment(ctx, room.AppointmentID)
	if err != nil {
		h.writeError(cl, roomID, "failed to load appointment")
		return
	}
	if !appt.HasParticipant(cl.Info().UserID) {
		h.writeError(cl, roomID, "not a participant")
		return
	}

	pay, err := h.payments.Status(ctx, appt.ID)
	if err != nil {
		h.writeError(cl, roomID, "failed to load payment")
		return
	}

	decision := gate.Evaluate(appt, pay)
	observability.IncGateDecision(string(decision.Reason))
	if !decision.Allowed {
		h.writeError(cl, roomID, string(decision.Reason))
		return
	}

	if joined := h.hub.Join(roomID, cl); joined {
		h.hub.BroadcastUserJoined(roomID, cl.Info().UserID, cl.Info().UserName, cl)
	}
	observability.IncWSEvent("joinRoom")
}

func (h *ConsultationWSHandler) handleSend(ctx context.Context, cl *Client, event models.Event) {
	if !h.hub.IsMember(event.RoomID, cl) {
		h.writeError(cl, event.RoomID, "not in room")
		return
	}
	if event.Text == "" {
		h.writeError(cl, event.RoomID, "empty message")
		return
	}

	from := models.Participant{
		ID:     cl.Info().UserID,
		Name:   cl.Info().UserName,
		Avatar: cl.Info().UserAvatar,
	}
	msg, err := h.msgRepo.CreateMessage(ctx, event.RoomID, from, event.Text, event.CorrelationID)
	if err != nil {
		h.logger.Error("failed to store message", zap.String("room_id", event.RoomID), zap.Error(err))
		h.writeError(cl, event.RoomID, "failed to store message")
		return
	}

	h.hub.BroadcastMessage(event.RoomID, msg)
	observability.IncWSEvent("sendMessage")
}

func (h *ConsultationWSHandler) handleTyping(cl *Client, event models.Event) {
	if event.Typing == nil || !h.hub.IsMember(event.RoomID, cl) {
		return
	}
	state := models.TypingState{
		RoomID:   event.RoomID,
		UserID:   cl.Info().UserID,
		UserName: cl.Info().UserName,
		IsTyping: event.Typing.IsTyping,
	}
	h.hub.BroadcastTyping(event.RoomID, state, cl)
	observability.IncWSEvent("typing")
}

func (h *ConsultationWSHandler) writeError(cl *Client, roomID, reason string) {
	_ = cl.WriteEvent(models.Event{Type: models.EventError, RoomID: roomID, Reason: reason})
}

func (h *ConsultationWSHandler) publishLifecycle(ctx context.Context, cl *Client, name, reason string) {
	info := cl.Info()
	_ = observability.PublishEvent(ctx, "ws_events.consultations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
