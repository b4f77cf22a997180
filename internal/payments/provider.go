package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"consult-service/internal/models"
	"consult-service/internal/observability"
	"consult-service/internal/repositories"
)

// ErrInvoiceInFlight is returned when another request is already creating
// an invoice for the appointment.
var ErrInvoiceInFlight = errors.New("invoice creation already in progress")

// ErrInvoicingDisabled is returned when no invoice provider is configured.
var ErrInvoicingDisabled = errors.New("invoice provider not configured")

// RoomCloser force-terminates an active session. The websocket hub
// implements it; the provider calls it when a paid payment regresses.
type RoomCloser interface {
	CloseRoom(roomID string, reason string)
}

// Provider is the payment status source for the session gate. It layers a
// short-lived redis cache over the repository and refreshes non-terminal,
// invoice-backed payments from the external provider on read and on a
// fixed polling interval.
type Provider struct {
	payRepo  repositories.PaymentRepository
	roomRepo repositories.RoomRepository
	invoices InvoiceClient
	cache    *redis.Client
	cacheTTL time.Duration
	interval time.Duration
	closer   RoomCloser
	logger   *zap.Logger
}

// NewProvider constructs a Provider. closer may be nil when session
// revocation is not wired (tests).
func NewProvider(
	payRepo repositories.PaymentRepository,
	roomRepo repositories.RoomRepository,
	invoices InvoiceClient,
	cache *redis.Client,
	cacheTTL, interval time.Duration,
	closer RoomCloser,
	logger *zap.Logger,
) *Provider {
	return &Provider{
		payRepo:  payRepo,
		roomRepo: roomRepo,
		invoices: invoices,
		cache:    cache,
		cacheTTL: cacheTTL,
		interval: interval,
		closer:   closer,
		logger:   logger,
	}
}

func cacheKey(appointmentID int) string {
	return "payment:appointment:" + strconv.Itoa(appointmentID)
}

// Status returns the current payment state for an appointment.
func (p *Provider) Status(ctx context.Context, appointmentID int) (models.Payment, error) {
	if cached, ok := p.fromCache(ctx, appointmentID); ok {
		return cached, nil
	}

	pay, err := p.payRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return models.Payment{}, err
	}

	pay, err = p.refresh(ctx, pay)
	if err != nil {
		return models.Payment{}, err
	}

	p.toCache(ctx, pay)
	return pay, nil
}

// refresh reconciles a non-terminal payment against the invoice provider
// and the deadline. Terminal payments are returned as-is.
func (p *Provider) refresh(ctx context.Context, pay models.Payment) (models.Payment, error) {
	if pay.Status.Terminal() {
		return pay, nil
	}

	if pay.InvoiceID != nil && p.invoices != nil {
		inv, err := p.invoices.GetInvoice(ctx, *pay.InvoiceID)
		if err != nil {
			// A provider outage must not block the gate; fall back to the
			// last persisted state.
			observability.IncPaymentPoll("error")
			p.logger.Warn("invoice poll failed", zap.Int("payment_id", pay.ID), zap.Error(err))
		} else {
			observability.IncPaymentPoll("ok")
			if next := inv.PaymentStatus(); next != pay.Status && next != models.PaymentUnpaid {
				return p.transition(ctx, pay, next)
			}
		}
	}

	if pay.Overdue(time.Now()) {
		return p.transition(ctx, pay, models.PaymentExpired)
	}
	return pay, nil
}

// transition persists a status change, invalidates the cache, publishes
// the change event, and revokes any open session when a settled payment
// regresses.
func (p *Provider) transition(ctx context.Context, pay models.Payment, next models.PaymentStatus) (models.Payment, error) {
	prev := pay.Status
	updated, err := p.payRepo.SetStatus(ctx, pay.ID, next)
	if err != nil {
		return models.Payment{}, fmt.Errorf("persist payment transition: %w", err)
	}
	p.invalidate(ctx, updated.AppointmentID)

	p.logger.Info("payment status changed",
		zap.Int("payment_id", updated.ID),
		zap.Int("appointment_id", updated.AppointmentID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	_ = observability.PublishEvent(ctx, "payment_events.status", observability.EventEnvelope{
		EventType: "payment_events",
		EventName: "payment_status_changed",
		Payload: map[string]interface{}{
			"payment_id":     updated.ID,
			"appointment_id": updated.AppointmentID,
			"from":           prev,
			"to":             next,
		},
	}, nil)

	switch {
	case prev != models.PaymentPaid && next == models.PaymentPaid:
		// Settlement provisions the consultation room so the descriptor
		// endpoint can hand out a joinable room immediately.
		if _, err := p.roomRepo.CreateRoomForAppointment(ctx, updated.AppointmentID); err != nil {
			p.logger.Warn("room provisioning failed",
				zap.Int("appointment_id", updated.AppointmentID), zap.Error(err))
		}
	case prev == models.PaymentPaid && next != models.PaymentPaid:
		p.revokeSession(ctx, updated.AppointmentID, "payment_"+string(next))
	}
	return updated, nil
}

// CreateInvoice opens an invoice for the appointment's payment, guarded by
// a redis lock so concurrent requests cannot create duplicates. When the
// payment already carries an invoice, the existing one is returned.
func (p *Provider) CreateInvoice(ctx context.Context, appointmentID int) (models.Payment, Invoice, error) {
	if p.invoices == nil {
		return models.Payment{}, Invoice{}, ErrInvoicingDisabled
	}
	pay, err := p.payRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return models.Payment{}, Invoice{}, err
	}
	if pay.Status == models.PaymentPaid {
		return pay, Invoice{}, nil
	}
	if pay.InvoiceID != nil {
		inv, err := p.invoices.GetInvoice(ctx, *pay.InvoiceID)
		if err != nil {
			return models.Payment{}, Invoice{}, err
		}
		return pay, inv, nil
	}

	if p.cache != nil {
		lockKey := "lock:invoice:" + strconv.Itoa(appointmentID)
		ok, err := p.cache.SetNX(ctx, lockKey, "1", 10*time.Second).Result()
		if err != nil {
			return models.Payment{}, Invoice{}, fmt.Errorf("acquire invoice lock: %w", err)
		}
		if !ok {
			return models.Payment{}, Invoice{}, ErrInvoiceInFlight
		}
		defer p.cache.Del(ctx, lockKey)
	}

	ref := "consult-" + strconv.Itoa(appointmentID)
	inv, err := p.invoices.CreateInvoice(ctx, ref, pay.Amount, pay.Deadline)
	if err != nil {
		return models.Payment{}, Invoice{}, err
	}
	if err := p.payRepo.AttachInvoice(ctx, pay.ID, inv.ID); err != nil {
		return models.Payment{}, Invoice{}, err
	}
	invoiceID := inv.ID
	pay.InvoiceID = &invoiceID
	p.invalidate(ctx, appointmentID)
	return pay, inv, nil
}

// SubmitProof records a manual bank-transfer proof and queues the payment
// for admin review.
func (p *Provider) SubmitProof(ctx context.Context, appointmentID int, proofURL string) (models.Payment, error) {
	pay, err := p.payRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return models.Payment{}, err
	}
	updated, err := p.payRepo.AttachProof(ctx, pay.ID, proofURL)
	if err != nil {
		return models.Payment{}, err
	}
	p.invalidate(ctx, appointmentID)
	return updated, nil
}

// Verify is the admin approval of a manual transfer.
func (p *Provider) Verify(ctx context.Context, paymentID int) (models.Payment, error) {
	pay, err := p.payRepo.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	return p.transition(ctx, pay, models.PaymentPaid)
}

// Reject is the admin denial of a manual transfer, or a chargeback applied
// after the fact. Rejecting a settled payment terminates any open session.
func (p *Provider) Reject(ctx context.Context, paymentID int) (models.Payment, error) {
	pay, err := p.payRepo.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	return p.transition(ctx, pay, models.PaymentRejected)
}

// Run re-polls non-terminal payments on the fixed interval until ctx ends.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Provider) pollOnce(ctx context.Context) {
	pays, err := p.payRepo.ListNonTerminal(ctx)
	if err != nil {
		p.logger.Warn("payment poll: list failed", zap.Error(err))
		return
	}
	for _, pay := range pays {
		if _, err := p.refresh(ctx, pay); err != nil {
			p.logger.Warn("payment poll: refresh failed", zap.Int("payment_id", pay.ID), zap.Error(err))
		}
	}
}

func (p *Provider) revokeSession(ctx context.Context, appointmentID int, reason string) {
	if p.closer == nil {
		return
	}
	room, err := p.roomRepo.GetRoomForAppointment(ctx, appointmentID)
	if err != nil {
		if !errors.Is(err, repositories.ErrRoomNotFound) {
			p.logger.Warn("session revoke: room lookup failed", zap.Int("appointment_id", appointmentID), zap.Error(err))
		}
		return
	}
	p.logger.Info("revoking active session",
		zap.String("room_id", room.RoomID),
		zap.String("reason", reason),
	)
	p.closer.CloseRoom(room.RoomID, reason)
}

func (p *Provider) fromCache(ctx context.Context, appointmentID int) (models.Payment, bool) {
	if p.cache == nil {
		return models.Payment{}, false
	}
	raw, err := p.cache.Get(ctx, cacheKey(appointmentID)).Bytes()
	if err != nil {
		return models.Payment{}, false
	}
	var pay models.Payment
	if err := json.Unmarshal(raw, &pay); err != nil {
		return models.Payment{}, false
	}
	return pay, true
}

func (p *Provider) toCache(ctx context.Context, pay models.Payment) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(pay)
	if err != nil {
		return
	}
	p.cache.Set(ctx, cacheKey(pay.AppointmentID), raw, p.cacheTTL)
}

func (p *Provider) invalidate(ctx context.Context, appointmentID int) {
	if p.cache == nil {
		return
	}
	p.cache.Del(ctx, cacheKey(appointmentID))
}
