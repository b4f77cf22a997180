package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"consult-service/gate"
	"consult-service/internal/models"
)

// ReasonUnsupportedEnvironment blocks a video consultation when the RTC
// capability is missing. A router concern, not a gate one.
const ReasonUnsupportedEnvironment gate.Reason = "UNSUPPORTED_ENVIRONMENT"

// Navigation is the routing outcome of entering a consultation: either a
// target medium or an explicit block with the reason. Gate denials route,
// they never error.
type Navigation struct {
	Allowed bool
	Medium  models.ConsultationMethod
	RoomID  string
	Reason  gate.Reason
}

// ConsultationRouter maps a gated session to the correct flow and enforces
// re-entry idempotence: entering an already-open session returns the same
// session instead of opening a second room membership.
type ConsultationRouter struct {
	api          API
	conn         *ConnectionManager
	self         models.Participant
	rtcAvailable func() bool
	logger       *zap.Logger

	mu   sync.Mutex
	open map[int]*ChatSession
}

// NewConsultationRouter constructs a router. rtcAvailable reports whether
// the environment can run the video SDK; nil means always available.
func NewConsultationRouter(api API, conn *ConnectionManager, self models.Participant, rtcAvailable func() bool, logger *zap.Logger) *ConsultationRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsultationRouter{
		api:          api,
		conn:         conn,
		self:         self,
		rtcAvailable: rtcAvailable,
		logger:       logger,
		open:         make(map[int]*ChatSession),
	}
}

// Enter evaluates the session gate for the appointment and routes. The
// gate is re-evaluated on every call; a session allowed yesterday is not
// allowed today once state regresses. For chat, the returned session is
// live; re-entering the same appointment returns the existing one.
func (r *ConsultationRouter) Enter(ctx context.Context, appt models.Appointment) (Navigation, *ChatSession, error) {
	pay, err := r.api.Payment(ctx, appt.ID)
	if err != nil {
		return Navigation{}, nil, err
	}

	decision := gate.Evaluate(appt, pay)
	if !decision.Allowed {
		r.logger.Info("consultation blocked",
			zap.Int("appointment_id", appt.ID),
			zap.String("reason", string(decision.Reason)),
		)
		return Navigation{Reason: decision.Reason}, nil, nil
	}

	if decision.Medium == models.MethodVideo && r.rtcAvailable != nil && !r.rtcAvailable() {
		return Navigation{Reason: ReasonUnsupportedEnvironment}, nil, nil
	}

	detail, err := r.api.Consultation(ctx, appt.ID)
	if err != nil {
		return Navigation{}, nil, err
	}

	if err := r.conn.Connect(ctx); err != nil {
		return Navigation{}, nil, err
	}

	nav := Navigation{
		Allowed: true,
		Medium:  decision.Medium,
		RoomID:  detail.RoomID,
		Reason:  gate.ReasonAllowed,
	}

	// Video hand-off goes to the RTC SDK; the room is only its signaling
	// channel and is joined by that flow.
	if decision.Medium == models.MethodVideo {
		return nav, nil, nil
	}

	r.mu.Lock()
	if existing, ok := r.open[appt.ID]; ok {
		r.mu.Unlock()
		return nav, existing, nil
	}
	r.mu.Unlock()

	session, err := OpenChatSession(ctx, r.conn, r.api, detail.RoomID, r.self, r.logger)
	if err != nil {
		return Navigation{}, nil, err
	}

	r.mu.Lock()
	if existing, ok := r.open[appt.ID]; ok {
		// Lost the race to a concurrent Enter; keep the first session.
		r.mu.Unlock()
		session.Close()
		return nav, existing, nil
	}
	session.setOnClose(func() {
		r.mu.Lock()
		delete(r.open, appt.ID)
		r.mu.Unlock()
	})
	r.open[appt.ID] = session
	r.mu.Unlock()

	return nav, session, nil
}
