package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// DevGateway approves every charge. It is used when no Stripe key is configured.
type DevGateway struct{}

func NewDevGateway() *DevGateway {
	return &DevGateway{}
}

func (d *DevGateway) Capture(ctx context.Context, c Charge) (*Capture, error) {
	if c.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}
	intent := c.PaymentIntentID
	if intent == "" {
		intent = "pi_dev_" + uuid.NewString()
	}
	out := &Capture{
		TransactionID:   "txn_dev_" + uuid.NewString(),
		PaymentIntentID: intent,
		Amount:          c.Amount,
		Currency:        c.Currency,
	}
	logger.InfoContext(ctx, "Dev gateway captured payment",
		"amount", c.Amount,
		"currency", c.Currency,
		"payment_intent_id", intent,
	)
	return out, nil
}

func (d *DevGateway) Refund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error) {
	logger.InfoContext(ctx, "Dev gateway refunded payment",
		"amount", amount,
		"payment_intent_id", paymentIntentID,
	)
	return &Refund{
		ID:              "re_dev_" + uuid.NewString(),
		PaymentIntentID: paymentIntentID,
		Amount:          amount,
	}, nil
}
