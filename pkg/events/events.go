package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url, nats.Name("cruise-bookings"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.Header.Set("X-Request-ID", rid)
	}
	return n.conn.PublishMsg(msg)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(fromNATS(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(fromNATS(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func fromNATS(msg *nats.Msg) *Message {
	id := ""
	if msg.Header != nil {
		id = msg.Header.Get(nats.MsgIdHdr)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
}

// LogBus delivers events in process and logs them. It is used when no NATS
// server is configured and in tests.
type LogBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(*Message)
}

func NewLogBus() *LogBus {
	return &LogBus{handlers: make(map[string][]func(*Message))}
}

func (b *LogBus) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	logger.InfoContext(ctx, "Event published", "subject", subject, "data", string(payload))

	msg := &Message{Subject: subject, Data: payload, Timestamp: time.Now(), ID: uuid.NewString()}
	b.mu.RLock()
	hs := append([]func(*Message){}, b.handlers[subject]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(msg)
	}
	return nil
}

func (b *LogBus) Subscribe(subject string, handler func(msg *Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

// QueueSubscribe ignores the queue group; there is one consumer per process.
func (b *LogBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return b.Subscribe(subject, handler)
}

func (b *LogBus) Close() error { return nil }

// Event types and subjects
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	BookingCancelled     = "booking.cancelled"
	BookingCheckedIn     = "booking.checked_in"

	PaymentCaptured = "payment.captured"
	PaymentRefunded = "payment.refunded"

	EnquiryCreated   = "enquiry.created"
	EnquiryResponded = "enquiry.responded"
)

// Event payloads
type BookingCreatedEvent struct {
	BookingID        int64     `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	UserID           int64     `json:"user_id"`
	CruiseID         int64     `json:"cruise_id"`
	DepartureDate    string    `json:"departure_date"`
	Guests           int       `json:"guests"`
	TotalPrice       int64     `json:"total_price"`
	CreatedAt        time.Time `json:"created_at"`
}

type BookingStatusChangedEvent struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

type BookingCancelledEvent struct {
	BookingID   int64     `json:"booking_id"`
	UserID      int64     `json:"user_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type BookingCheckedInEvent struct {
	BookingID   int64     `json:"booking_id"`
	UserID      int64     `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

type PaymentCapturedEvent struct {
	BookingID       int64  `json:"booking_id"`
	PaymentID       int64  `json:"payment_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

type PaymentRefundedEvent struct {
	BookingID  int64     `json:"booking_id"`
	Amount     int64     `json:"amount"`
	PaymentIDs []int64   `json:"payment_ids"`
	RefundedAt time.Time `json:"refunded_at"`
}

type EnquiryCreatedEvent struct {
	EnquiryID int64  `json:"enquiry_id"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
}

type EnquiryRespondedEvent struct {
	EnquiryID   int64 `json:"enquiry_id"`
	ResponseID  int64 `json:"response_id"`
	RespondedBy int64 `json:"responded_by"`
}
