package models

import "time"

// PaymentStatus mirrors the payment collaborator's state machine.
type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "unpaid"
	PaymentWaitingVerification PaymentStatus = "waiting_verification"
	PaymentPaid                PaymentStatus = "paid"
	PaymentRejected            PaymentStatus = "rejected"
	PaymentExpired             PaymentStatus = "expired"
)

// Terminal reports whether the payment will not change state again
// without operator intervention.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentRejected || s == PaymentExpired
}

// Payment is the payment record for one appointment. InvoiceID references
// the external invoice provider; ProofURL is set by the manual
// bank-transfer flow.
type Payment struct {
	ID            int           `db:"id" json:"id"`
	AppointmentID int           `db:"appointment_id" json:"appointment_id"`
	Status        PaymentStatus `db:"status" json:"status"`
	Amount        int64         `db:"amount" json:"amount"`
	Deadline      time.Time     `db:"deadline" json:"deadline"`
	InvoiceID     *string       `db:"invoice_id" json:"invoice_id,omitempty"`
	ProofURL      *string       `db:"proof_url" json:"proof_url,omitempty"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether the payment deadline has passed without settlement.
func (p Payment) Overdue(now time.Time) bool {
	return p.Status != PaymentPaid && !p.Deadline.IsZero() && now.After(p.Deadline)
}
