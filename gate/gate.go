// Package gate decides whether two parties may enter a live consultation.
// The decision is a pure function of appointment and payment state: it has
// no memory, so callers re-evaluate it on every state change and a session
// stops being offered the moment state regresses.
package gate

import "consult-service/internal/models"

// Reason explains a denied (or granted) decision. Denials are routing
// outcomes, not errors.
type Reason string

const (
	ReasonAllowed              Reason = "ALLOWED"
	ReasonPaymentRequired      Reason = "PAYMENT_REQUIRED"
	ReasonAwaitingVerification Reason = "AWAITING_VERIFICATION"
	ReasonPaymentRejected      Reason = "PAYMENT_REJECTED"
	ReasonPaymentExpired       Reason = "PAYMENT_EXPIRED"
	ReasonAppointmentNotActive Reason = "APPOINTMENT_NOT_ACTIVE"
	ReasonAppointmentClosed    Reason = "APPOINTMENT_CLOSED"
	ReasonNoRemoteMedium       Reason = "NO_REMOTE_MEDIUM"
)

// Decision is derived, never stored.
type Decision struct {
	Allowed bool                      `json:"allowed"`
	Medium  models.ConsultationMethod `json:"medium,omitempty"`
	Reason  Reason                    `json:"reason"`
}

// Evaluate returns the access decision for a consultation session.
// Allowed is true iff the payment is settled, the appointment is confirmed
// or ongoing, and the appointment carries a remote medium. A terminal
// appointment state denies regardless of payment, and homecare appointments
// are always denied because they have no remote medium.
func Evaluate(appt models.Appointment, pay models.Payment) Decision {
	if appt.Status.Terminal() {
		return Decision{Reason: ReasonAppointmentClosed}
	}
	if appt.Type == models.AppointmentHomecare || appt.Method == nil {
		return Decision{Reason: ReasonNoRemoteMedium}
	}
	if *appt.Method != models.MethodChat && *appt.Method != models.MethodVideo {
		return Decision{Reason: ReasonNoRemoteMedium}
	}

	switch pay.Status {
	case models.PaymentUnpaid:
		return Decision{Reason: ReasonPaymentRequired}
	case models.PaymentWaitingVerification:
		return Decision{Reason: ReasonAwaitingVerification}
	case models.PaymentRejected:
		return Decision{Reason: ReasonPaymentRejected}
	case models.PaymentExpired:
		return Decision{Reason: ReasonPaymentExpired}
	case models.PaymentPaid:
	default:
		return Decision{Reason: ReasonPaymentRequired}
	}

	if appt.Status != models.AppointmentConfirmed && appt.Status != models.AppointmentOngoing {
		return Decision{Reason: ReasonAppointmentNotActive}
	}

	return Decision{Allowed: true, Medium: *appt.Method, Reason: ReasonAllowed}
}
