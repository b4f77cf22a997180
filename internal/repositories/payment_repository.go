package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"consult-service/internal/models"
)

var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository persists the local view of the payment collaborator's
// state for each appointment.
type PaymentRepository interface {
	GetByAppointment(ctx context.Context, appointmentID int) (models.Payment, error)
	GetPayment(ctx context.Context, paymentID int) (models.Payment, error)
	SetStatus(ctx context.Context, paymentID int, status models.PaymentStatus) (models.Payment, error)
	AttachInvoice(ctx context.Context, paymentID int, invoiceID string) error
	AttachProof(ctx context.Context, paymentID int, proofURL string) (models.Payment, error)
	ListNonTerminal(ctx context.Context) ([]models.Payment, error)
}

// PaymentRepo is a sqlx-backed repository.
type PaymentRepo struct {
	db *sqlx.DB
}

// NewPaymentRepo constructs a PaymentRepo.
func NewPaymentRepo(db *sqlx.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = `id, appointment_id, status, amount, deadline, invoice_id, proof_url, updated_at`

// GetByAppointment fetches the payment record for an appointment.
func (r *PaymentRepo) GetByAppointment(ctx context.Context, appointmentID int) (models.Payment, error) {
	var pay models.Payment
	err := r.db.GetContext(ctx, &pay, `SELECT `+paymentColumns+` FROM payments WHERE appointment_id=$1`, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ErrPaymentNotFound
	}
	return pay, err
}

// GetPayment fetches a payment by id.
func (r *PaymentRepo) GetPayment(ctx context.Context, paymentID int) (models.Payment, error) {
	var pay models.Payment
	err := r.db.GetContext(ctx, &pay, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ErrPaymentNotFound
	}
	return pay, err
}

// SetStatus updates the payment status and returns the fresh row.
func (r *PaymentRepo) SetStatus(ctx context.Context, paymentID int, status models.PaymentStatus) (models.Payment, error) {
	var pay models.Payment
	err := r.db.QueryRowxContext(ctx,
		`UPDATE payments SET status=$2, updated_at=NOW() WHERE id=$1 RETURNING `+paymentColumns,
		paymentID, status).StructScan(&pay)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ErrPaymentNotFound
	}
	return pay, err
}

// AttachInvoice stores the external invoice provider reference.
func (r *PaymentRepo) AttachInvoice(ctx context.Context, paymentID int, invoiceID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET invoice_id=$2, updated_at=NOW() WHERE id=$1`, paymentID, invoiceID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// AttachProof stores a bank-transfer proof and moves the payment into
// waiting_verification for admin review.
func (r *PaymentRepo) AttachProof(ctx context.Context, paymentID int, proofURL string) (models.Payment, error) {
	var pay models.Payment
	err := r.db.QueryRowxContext(ctx,
		`UPDATE payments SET proof_url=$2, status='waiting_verification', updated_at=NOW()
         WHERE id=$1 AND status IN ('unpaid','waiting_verification') RETURNING `+paymentColumns,
		paymentID, proofURL).StructScan(&pay)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ErrPaymentNotFound
	}
	return pay, err
}

// ListNonTerminal returns payments the poller still needs to watch.
func (r *PaymentRepo) ListNonTerminal(ctx context.Context) ([]models.Payment, error) {
	var pays []models.Payment
	err := r.db.SelectContext(ctx, &pays,
		`SELECT `+paymentColumns+` FROM payments WHERE status IN ('unpaid','waiting_verification')`)
	return pays, err
}
