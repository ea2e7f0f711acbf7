package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// StripeGateway confirms client-side PaymentIntents and refunds them.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil)}
}

func (s *StripeGateway) Capture(ctx context.Context, c Charge) (*Capture, error) {
	if c.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: paymentIntentId is required", ErrDeclined)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.sc.PaymentIntents.Get(c.PaymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		logger.WarnContext(ctx, "Payment intent not settled",
			"payment_intent_id", pi.ID,
			"status", string(pi.Status),
		)
		return nil, fmt.Errorf("%w: payment intent is %s", ErrDeclined, pi.Status)
	}
	if pi.Amount != c.Amount || !strings.EqualFold(string(pi.Currency), c.Currency) {
		return nil, fmt.Errorf("%w: payment intent amount does not match", ErrDeclined)
	}

	txn := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		txn = pi.LatestCharge.ID
	}
	return &Capture{
		TransactionID:   txn,
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        strings.ToUpper(string(pi.Currency)),
	}, nil
}

func (s *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	re, err := s.sc.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &Refund{ID: re.ID, PaymentIntentID: paymentIntentID, Amount: re.Amount}, nil
}
