package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"consult-service/internal/models"
)

func method(m models.ConsultationMethod) *models.ConsultationMethod {
	return &m
}

func onlineAppt(status models.AppointmentStatus, m models.ConsultationMethod) models.Appointment {
	return models.Appointment{
		ID:     1,
		Status: status,
		Type:   models.AppointmentOnline,
		Method: method(m),
	}
}

func payment(status models.PaymentStatus) models.Payment {
	return models.Payment{ID: 1, AppointmentID: 1, Status: status}
}

func TestEvaluateAllowedOnlyWhenPaidActiveAndRemote(t *testing.T) {
	appointmentStatuses := []models.AppointmentStatus{
		models.AppointmentPending,
		models.AppointmentConfirmed,
		models.AppointmentOngoing,
		models.AppointmentCompleted,
		models.AppointmentCancelled,
	}
	paymentStatuses := []models.PaymentStatus{
		models.PaymentUnpaid,
		models.PaymentWaitingVerification,
		models.PaymentPaid,
		models.PaymentRejected,
		models.PaymentExpired,
	}
	methods := []models.ConsultationMethod{models.MethodChat, models.MethodVideo}

	for _, as := range appointmentStatuses {
		for _, ps := range paymentStatuses {
			for _, m := range methods {
				d := Evaluate(onlineAppt(as, m), payment(ps))
				want := ps == models.PaymentPaid &&
					(as == models.AppointmentConfirmed || as == models.AppointmentOngoing)
				assert.Equalf(t, want, d.Allowed, "status=%s payment=%s method=%s", as, ps, m)
				if want {
					assert.Equal(t, m, d.Medium)
					assert.Equal(t, ReasonAllowed, d.Reason)
				}
			}
		}
	}
}

func TestEvaluateHomecareAlwaysDenied(t *testing.T) {
	appt := models.Appointment{
		Status: models.AppointmentConfirmed,
		Type:   models.AppointmentHomecare,
	}
	d := Evaluate(appt, payment(models.PaymentPaid))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoRemoteMedium, d.Reason)
}

func TestEvaluateNilMethodDenied(t *testing.T) {
	appt := models.Appointment{
		Status: models.AppointmentConfirmed,
		Type:   models.AppointmentOnline,
	}
	d := Evaluate(appt, payment(models.PaymentPaid))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoRemoteMedium, d.Reason)
}

func TestEvaluateUnpaidRoutesToPayment(t *testing.T) {
	d := Evaluate(onlineAppt(models.AppointmentConfirmed, models.MethodChat), payment(models.PaymentUnpaid))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPaymentRequired, d.Reason)
}

func TestEvaluateWaitingVerification(t *testing.T) {
	d := Evaluate(onlineAppt(models.AppointmentConfirmed, models.MethodChat), payment(models.PaymentWaitingVerification))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAwaitingVerification, d.Reason)
}

func TestEvaluateTerminalAppointmentOverridesPayment(t *testing.T) {
	d := Evaluate(onlineAppt(models.AppointmentCompleted, models.MethodChat), payment(models.PaymentPaid))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAppointmentClosed, d.Reason)

	d = Evaluate(onlineAppt(models.AppointmentCancelled, models.MethodVideo), payment(models.PaymentPaid))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAppointmentClosed, d.Reason)
}

func TestEvaluateRegressionRevokesAccess(t *testing.T) {
	appt := onlineAppt(models.AppointmentOngoing, models.MethodChat)

	d := Evaluate(appt, payment(models.PaymentPaid))
	assert.True(t, d.Allowed)

	// Chargeback after the fact: the next evaluation denies.
	d = Evaluate(appt, payment(models.PaymentRejected))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPaymentRejected, d.Reason)
}
