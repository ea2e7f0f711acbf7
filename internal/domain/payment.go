package domain

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type BillingAddress struct {
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	State      *string `json:"state,omitempty" validate:"omitempty,max=100"`
	PostalCode string  `json:"postalCode" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,max=100"`
}

// Payment never carries a full card number; only display metadata is stored.
type Payment struct {
	ID              int64           `json:"id"`
	BookingID       int64           `json:"bookingId"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Status          PaymentStatus   `json:"status"`
	PaymentMethod   string          `json:"paymentMethod"`
	TransactionID   *string         `json:"transactionId"`
	PaymentIntentID *string         `json:"paymentIntentId"`
	CardLast4       *string         `json:"cardLast4"`
	CardExpiry      *string         `json:"cardExpiry"`
	CardHolderName  *string         `json:"cardHolderName"`
	BillingAddress  *BillingAddress `json:"billingAddress"`
	RefundAmount    *int64          `json:"refundAmount"`
	RefundDate      *time.Time      `json:"refundDate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Refundable is the part of a completed payment not yet refunded.
func (p *Payment) Refundable() int64 {
	if p.Status != PaymentCompleted {
		return 0
	}
	if p.RefundAmount != nil {
		return p.Amount - *p.RefundAmount
	}
	return p.Amount
}

type PaymentRequest struct {
	Amount          int64           `json:"amount" validate:"required,gt=0"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,oneof=card stripe bank_transfer"`
	PaymentIntentID *string         `json:"paymentIntentId" validate:"omitempty,max=255"`
	CardLast4       *string         `json:"cardLast4" validate:"omitempty,len=4,numeric"`
	CardExpiry      *string         `json:"cardExpiry" validate:"omitempty,max=7"`
	CardHolderName  *string         `json:"cardHolderName" validate:"omitempty,max=200"`
	BillingAddress  *BillingAddress `json:"billingAddress" validate:"omitempty"`
}

func (r *PaymentRequest) Normalize() {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = "USD"
	}
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
}

func (r *PaymentRequest) Validate() error {
	return ValidateStruct(r)
}

// RefundAllocation is the share of a refund charged back to one payment.
type RefundAllocation struct {
	PaymentID       int64
	PaymentIntentID *string
	Amount          int64
}

// AllocateRefund spreads amount over refundable payments, newest first. ok is
// false when the payments cannot cover amount.
func AllocateRefund(payments []Payment, amount int64) ([]RefundAllocation, bool) {
	var out []RefundAllocation
	left := amount
	for i := len(payments) - 1; i >= 0 && left > 0; i-- {
		avail := payments[i].Refundable()
		if avail <= 0 {
			continue
		}
		take := min(avail, left)
		out = append(out, RefundAllocation{
			PaymentID:       payments[i].ID,
			PaymentIntentID: payments[i].PaymentIntentID,
			Amount:          take,
		})
		left -= take
	}
	return out, left == 0
}
