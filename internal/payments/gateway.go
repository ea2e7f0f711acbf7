package payments

import (
	"context"
	"errors"
)

// ErrDeclined means the gateway refused to capture the payment.
var ErrDeclined = errors.New("payment declined")

type Charge struct {
	Amount          int64
	Currency        string
	Method          string
	PaymentIntentID string
}

type Capture struct {
	TransactionID   string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
}

// Gateway captures and refunds money. Amounts are integer cents.
type Gateway interface {
	Capture(ctx context.Context, c Charge) (*Capture, error)
	Refund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error)
}
