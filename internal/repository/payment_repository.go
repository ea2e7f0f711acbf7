package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/pkg/database"
)

// ErrDuplicateIntent is returned when a PaymentIntent is already recorded
// against a payment.
var ErrDuplicateIntent = errors.New("payment intent already recorded")

type PaymentRepository interface {
	// Capture records a completed payment. When confirm is set the booking
	// transition is applied in the same transaction.
	Capture(ctx context.Context, p *domain.Payment, confirm *domain.Transition) (*domain.Payment, *domain.Booking, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Payment, error)
	// Refund charges allocations back to their payments and applies the
	// booking transition in one transaction.
	Refund(ctx context.Context, t domain.Transition, allocations []domain.RefundAllocation) (*domain.Booking, error)
}

type paymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentCols = `id, booking_id, amount, currency, status, payment_method,
transaction_id, payment_intent_id, card_last4, card_expiry, card_holder_name,
billing_address, refund_amount, refund_date, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var billing []byte
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Status, &p.PaymentMethod,
		&p.TransactionID, &p.PaymentIntentID, &p.CardLast4, &p.CardExpiry, &p.CardHolderName,
		&billing, &p.RefundAmount, &p.RefundDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(billing) > 0 {
		var addr domain.BillingAddress
		if err := json.Unmarshal(billing, &addr); err != nil {
			return nil, fmt.Errorf("decode billing address for payment %d: %w", p.ID, err)
		}
		p.BillingAddress = &addr
	}
	return &p, nil
}

func (r *paymentRepository) Capture(ctx context.Context, p *domain.Payment, confirm *domain.Transition) (*domain.Payment, *domain.Booking, error) {
	const q = `INSERT INTO payments (
		booking_id, amount, currency, status, payment_method,
		transaction_id, payment_intent_id, card_last4, card_expiry, card_holder_name,
		billing_address
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	RETURNING ` + paymentCols

	var billing *string
	if p.BillingAddress != nil {
		raw, err := json.Marshal(p.BillingAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("encode billing address: %w", err)
		}
		s := string(raw)
		billing = &s
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		payment *domain.Payment
		booking *domain.Booking
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		payment, err = scanPayment(tx.QueryRow(ctx, q,
			p.BookingID, p.Amount, p.Currency, string(p.Status), p.PaymentMethod,
			p.TransactionID, p.PaymentIntentID, p.CardLast4, p.CardExpiry, p.CardHolderName,
			billing,
		))
		if err != nil {
			return err
		}
		if confirm != nil {
			booking, err = applyTransition(ctx, tx, *confirm)
		}
		return err
	})
	if database.IsUniqueViolation(err, "payments_intent_key") {
		return nil, nil, ErrDuplicateIntent
	}
	if err != nil {
		return nil, nil, err
	}
	return payment, booking, nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE booking_id=$1 ORDER BY created_at, id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *paymentRepository) Refund(ctx context.Context, t domain.Transition, allocations []domain.RefundAllocation) (*domain.Booking, error) {
	const q = `UPDATE payments SET
		refund_amount = COALESCE(refund_amount, 0) + $2,
		refund_date = $3,
		status = CASE WHEN COALESCE(refund_amount, 0) + $2 >= amount THEN 'refunded' ELSE status END,
		updated_at = $3
	WHERE id=$1 AND status='completed' AND amount - COALESCE(refund_amount, 0) >= $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var booking *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, a := range allocations {
			tag, err := tx.Exec(ctx, q, a.PaymentID, a.Amount, t.At)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrStaleVersion
			}
		}
		var err error
		booking, err = applyTransition(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
