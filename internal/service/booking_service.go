package service

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/payments"
	"github.com/diagnosis/cruise-bookings/internal/repository"
	"github.com/diagnosis/cruise-bookings/pkg/events"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type BookingService interface {
	Create(ctx context.Context, userID int64, req *domain.CreateBookingRequest) (*domain.Booking, error)
	List(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListUpcoming(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListPast(ctx context.Context, userID int64) ([]domain.Booking, error)
	Get(ctx context.Context, userID, id int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, userID, id int64, status string) (*domain.Booking, error)
	Cancel(ctx context.Context, userID, id int64, req *domain.CancelBookingRequest) (*domain.Booking, error)
	ProcessRefund(ctx context.Context, userID, id int64, req *domain.RefundRequest) (*domain.Booking, error)
	CheckIn(ctx context.Context, userID, id int64) (*domain.Booking, error)
	ProcessPayment(ctx context.Context, userID, id int64, req *domain.PaymentRequest) (*domain.Payment, *domain.Booking, error)
	ListPayments(ctx context.Context, userID, id int64) ([]domain.Payment, error)
}

const referenceAttempts = 3

// crockford is Crockford's base32 alphabet: no I, L, O or U.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewBookingReference returns "BK-" and 16 base32 characters drawn from the
// random bits of a v4 UUID.
func NewBookingReference() string {
	id := uuid.New()
	raw := make([]byte, 0, 10)
	raw = append(raw, id[0:6]...)
	raw = append(raw, id[10:14]...)
	return "BK-" + crockford.EncodeToString(raw)
}

type bookingService struct {
	bookings repository.BookingRepository
	payments repository.PaymentRepository
	catalog  repository.CatalogRepository
	gateway  payments.Gateway
	events   events.Publisher
	now      func() time.Time
	newRef   func() string
}

func NewBookingService(
	bookings repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	catalog repository.CatalogRepository,
	gateway payments.Gateway,
	publisher events.Publisher,
) BookingService {
	return &bookingService{
		bookings: bookings,
		payments: paymentRepo,
		catalog:  catalog,
		gateway:  gateway,
		events:   publisher,
		now:      time.Now,
		newRef:   NewBookingReference,
	}
}

func (s *bookingService) Create(ctx context.Context, userID int64, req *domain.CreateBookingRequest) (*domain.Booking, error) {
	req.Normalize()
	departure, ret, err := req.Validate(s.now())
	if err != nil {
		return nil, err
	}

	cruise, err := s.catalog.GetCruise(ctx, req.CruiseID)
	if err != nil {
		return nil, fmt.Errorf("load cruise: %w", err)
	}
	if cruise == nil {
		return nil, domain.ErrCruiseNotFound
	}

	b := &domain.Booking{
		UserID:         userID,
		CruiseID:       cruise.ID,
		BookingDate:    s.now().UTC(),
		DepartureDate:  departure,
		NumberOfGuests: req.NumberOfGuests,
		CabinType:      req.CabinType,
		GuestDetails:   req.GuestDetails,
	}
	if ret != nil {
		b.ReturnDate = *ret
	} else {
		b.ReturnDate = departure.AddDate(0, 0, cruise.Duration)
	}
	if req.TotalPrice != nil {
		b.TotalPrice = *req.TotalPrice
	} else {
		b.TotalPrice = cruise.PricePerPerson * int64(req.NumberOfGuests)
	}

	var created *domain.Booking
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		b.BookingReference = s.newRef()
		created, err = s.bookings.Create(ctx, b)
		if !errors.Is(err, repository.ErrDuplicateReference) {
			break
		}
		logger.WarnContext(ctx, "Booking reference collision", "attempt", attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	logger.InfoContext(ctx, "Booking created",
		"booking_id", created.ID,
		"reference", created.BookingReference,
		"cruise_id", created.CruiseID,
	)
	s.publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
		BookingID:        created.ID,
		BookingReference: created.BookingReference,
		UserID:           created.UserID,
		CruiseID:         created.CruiseID,
		DepartureDate:    created.DepartureDate.Format("2006-01-02"),
		Guests:           created.NumberOfGuests,
		TotalPrice:       created.TotalPrice,
		CreatedAt:        created.CreatedAt,
	})
	return created, nil
}

func (s *bookingService) List(ctx context.Context, userID int64) ([]domain.Booking, error) {
	out, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

func (s *bookingService) ListUpcoming(ctx context.Context, userID int64) ([]domain.Booking, error) {
	out, err := s.bookings.ListUpcoming(ctx, userID, domain.Today(s.now()))
	if err != nil {
		return nil, fmt.Errorf("list upcoming bookings: %w", err)
	}
	return out, nil
}

func (s *bookingService) ListPast(ctx context.Context, userID int64) ([]domain.Booking, error) {
	out, err := s.bookings.ListPast(ctx, userID, domain.Today(s.now()))
	if err != nil {
		return nil, fmt.Errorf("list past bookings: %w", err)
	}
	return out, nil
}

func (s *bookingService) Get(ctx context.Context, userID, id int64) (*domain.Booking, error) {
	return s.load(ctx, userID, id, domain.ErrBookingViewDenied)
}

// load fetches a booking the caller owns; denied is returned for anyone else.
func (s *bookingService) load(ctx context.Context, userID, id int64, denied error) (*domain.Booking, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidBookingID
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	if !b.IsOwnedBy(userID) {
		logger.WarnContext(ctx, "Booking access denied", "booking_id", id)
		return nil, denied
	}
	return b, nil
}

func (s *bookingService) UpdateStatus(ctx context.Context, userID, id int64, status string) (*domain.Booking, error) {
	to, ok := domain.ParseBookingStatus(status)
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	b, err := s.load(ctx, userID, id, domain.ErrBookingEditDenied)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(to) {
		return nil, domain.TransitionError(b.Status, to)
	}
	return s.transition(ctx, b, domain.Transition{To: to})
}

func (s *bookingService) Cancel(ctx context.Context, userID, id int64, req *domain.CancelBookingRequest) (*domain.Booking, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b, err := s.load(ctx, userID, id, domain.ErrBookingEditDenied)
	if err != nil {
		return nil, err
	}
	if !b.Status.Cancellable() {
		return nil, domain.TransitionError(b.Status, domain.BookingCancelled)
	}

	reason := req.Reason
	updated, err := s.transition(ctx, b, domain.Transition{
		To:                 domain.BookingCancelled,
		CancellationReason: &reason,
		CancellationNotes:  req.Notes,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingCancelled, events.BookingCancelledEvent{
		BookingID:   updated.ID,
		UserID:      updated.UserID,
		Reason:      reason,
		CancelledAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (s *bookingService) ProcessRefund(ctx context.Context, userID, id int64, req *domain.RefundRequest) (*domain.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b, err := s.load(ctx, userID, id, domain.ErrBookingEditDenied)
	if err != nil {
		return nil, err
	}
	if !b.Status.Refundable() {
		return nil, domain.TransitionError(b.Status, domain.BookingRefunded)
	}

	paid, err := s.payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	allocs, ok := domain.AllocateRefund(paid, req.Amount)
	if !ok {
		return nil, domain.FieldError("amount", "Refund amount exceeds the amount paid for this booking")
	}

	for _, a := range allocs {
		if a.PaymentIntentID == nil {
			logger.InfoContext(ctx, "Refund recorded without gateway intent", "payment_id", a.PaymentID, "amount", a.Amount)
			continue
		}
		if _, err := s.gateway.Refund(ctx, *a.PaymentIntentID, a.Amount); err != nil {
			return nil, fmt.Errorf("gateway refund for payment %d: %w", a.PaymentID, err)
		}
	}

	now := s.now().UTC()
	amount := req.Amount
	updated, err := s.payments.Refund(ctx, domain.Transition{
		BookingID:       b.ID,
		ExpectedVersion: b.Version,
		To:              domain.BookingRefunded,
		At:              now,
		RefundAmount:    &amount,
	}, allocs)
	if err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			logger.ErrorContext(ctx, "Refund sent to gateway but booking changed before it was recorded",
				"booking_id", b.ID, "amount", amount)
			return nil, domain.ErrStaleBooking
		}
		return nil, fmt.Errorf("record refund: %w", err)
	}

	ids := make([]int64, len(allocs))
	for i, a := range allocs {
		ids[i] = a.PaymentID
	}
	logger.InfoContext(ctx, "Booking refunded", "booking_id", b.ID, "amount", amount)
	s.publishStatus(ctx, b.Status, updated)
	s.publish(ctx, events.PaymentRefunded, events.PaymentRefundedEvent{
		BookingID:  b.ID,
		Amount:     amount,
		PaymentIDs: ids,
		RefundedAt: now,
	})
	return updated, nil
}

func (s *bookingService) CheckIn(ctx context.Context, userID, id int64) (*domain.Booking, error) {
	b, err := s.load(ctx, userID, id, domain.ErrBookingEditDenied)
	if err != nil {
		return nil, err
	}
	if b.CheckedIn {
		return nil, domain.ErrAlreadyCheckedIn
	}
	if !b.Status.CheckInOpen() {
		return nil, domain.Conflict(fmt.Sprintf("Check-in is not available for %s bookings", b.Status)).
			With("currentStatus", string(b.Status))
	}

	updated, err := s.bookings.CheckIn(ctx, b.ID, b.Version, s.now().UTC())
	if errors.Is(err, repository.ErrStaleVersion) {
		return nil, domain.ErrStaleBooking
	}
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	s.publish(ctx, events.BookingCheckedIn, events.BookingCheckedInEvent{
		BookingID:   updated.ID,
		UserID:      updated.UserID,
		CheckedInAt: *updated.CheckInDate,
	})
	return updated, nil
}

func (s *bookingService) ProcessPayment(ctx context.Context, userID, id int64, req *domain.PaymentRequest) (*domain.Payment, *domain.Booking, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	b, err := s.load(ctx, userID, id, domain.ErrBookingEditDenied)
	if err != nil {
		return nil, nil, err
	}
	if !b.Status.Payable() {
		return nil, nil, domain.Conflict(fmt.Sprintf("Cannot take payment for %s bookings", b.Status)).
			With("currentStatus", string(b.Status))
	}

	charge := payments.Charge{Amount: req.Amount, Currency: req.Currency, Method: req.PaymentMethod}
	if req.PaymentIntentID != nil {
		charge.PaymentIntentID = *req.PaymentIntentID
	}
	captured, err := s.gateway.Capture(ctx, charge)
	if errors.Is(err, payments.ErrDeclined) {
		logger.WarnContext(ctx, "Payment declined", "booking_id", b.ID, "error", err)
		return nil, nil, domain.Validation("Payment was declined")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("capture payment: %w", err)
	}

	p := &domain.Payment{
		BookingID:       b.ID,
		Amount:          captured.Amount,
		Currency:        captured.Currency,
		Status:          domain.PaymentCompleted,
		PaymentMethod:   req.PaymentMethod,
		TransactionID:   &captured.TransactionID,
		PaymentIntentID: &captured.PaymentIntentID,
		CardLast4:       req.CardLast4,
		CardExpiry:      req.CardExpiry,
		CardHolderName:  req.CardHolderName,
		BillingAddress:  req.BillingAddress,
	}

	var confirm *domain.Transition
	if b.Status == domain.BookingPending {
		confirm = &domain.Transition{
			BookingID:       b.ID,
			ExpectedVersion: b.Version,
			To:              domain.BookingConfirmed,
			At:              s.now().UTC(),
		}
	}

	payment, updated, err := s.payments.Capture(ctx, p, confirm)
	if errors.Is(err, repository.ErrDuplicateIntent) {
		logger.WarnContext(ctx, "Payment intent replayed",
			"booking_id", b.ID, "payment_intent_id", captured.PaymentIntentID)
		return nil, nil, domain.ErrPaymentRecorded
	}
	if errors.Is(err, repository.ErrStaleVersion) {
		logger.ErrorContext(ctx, "Payment captured but booking changed before it was recorded",
			"booking_id", b.ID, "transaction_id", captured.TransactionID)
		return nil, nil, domain.ErrStaleBooking
	}
	if err != nil {
		return nil, nil, fmt.Errorf("record payment: %w", err)
	}
	if updated == nil {
		updated = b
	} else {
		s.publishStatus(ctx, b.Status, updated)
	}

	logger.InfoContext(ctx, "Payment captured", "booking_id", b.ID, "payment_id", payment.ID, "amount", payment.Amount)
	s.publish(ctx, events.PaymentCaptured, events.PaymentCapturedEvent{
		BookingID:       b.ID,
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		PaymentIntentID: captured.PaymentIntentID,
	})
	return payment, updated, nil
}

func (s *bookingService) ListPayments(ctx context.Context, userID, id int64) ([]domain.Payment, error) {
	b, err := s.load(ctx, userID, id, domain.ErrBookingViewDenied)
	if err != nil {
		return nil, err
	}
	out, err := s.payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// transition applies t against the version of b that was read.
func (s *bookingService) transition(ctx context.Context, b *domain.Booking, t domain.Transition) (*domain.Booking, error) {
	t.BookingID = b.ID
	t.ExpectedVersion = b.Version
	t.At = s.now().UTC()

	updated, err := s.bookings.ApplyTransition(ctx, t)
	if errors.Is(err, repository.ErrStaleVersion) {
		return nil, domain.ErrStaleBooking
	}
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	logger.InfoContext(ctx, "Booking status changed",
		"booking_id", b.ID,
		"from", string(b.Status),
		"to", string(updated.Status),
	)
	s.publishStatus(ctx, b.Status, updated)
	return updated, nil
}

func (s *bookingService) publishStatus(ctx context.Context, from domain.BookingStatus, b *domain.Booking) {
	s.publish(ctx, events.BookingStatusChanged, events.BookingStatusChangedEvent{
		BookingID: b.ID,
		UserID:    b.UserID,
		From:      string(from),
		To:        string(b.Status),
		ChangedAt: b.UpdatedAt,
	})
}

func (s *bookingService) publish(ctx context.Context, subject string, payload any) {
	publish(ctx, s.events, subject, payload)
}

// publish is fire-and-forget; a failed publish never fails the operation.
func publish(ctx context.Context, p events.Publisher, subject string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
