package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingRefunded   BookingStatus = "refunded"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(s))) {
	case BookingPending:
		return BookingPending, true
	case BookingConfirmed:
		return BookingConfirmed, true
	case BookingInProgress:
		return BookingInProgress, true
	case BookingCompleted:
		return BookingCompleted, true
	case BookingCancelled:
		return BookingCancelled, true
	case BookingRefunded:
		return BookingRefunded, true
	default:
		return "", false
	}
}

// statusEdges are the transitions a plain status update may perform. Refunds
// have their own operation and are absent here.
var statusEdges = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range statusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) Cancellable() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) Refundable() bool {
	return s == BookingCancelled || s == BookingConfirmed
}

func (s BookingStatus) Payable() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) CheckInOpen() bool {
	return s == BookingConfirmed || s == BookingInProgress
}

// Status sets used by the upcoming and past listings.
var (
	UpcomingStatuses = []BookingStatus{BookingPending, BookingConfirmed}
	PastStatuses     = []BookingStatus{BookingInProgress, BookingCompleted, BookingCancelled, BookingRefunded}
)

// IsUpcoming reports whether b belongs in the upcoming listing for today.
// The booking repository's ListUpcoming query applies the same rule.
func IsUpcoming(b *Booking, today time.Time) bool {
	return b.DepartureDate.After(today) && slices.Contains(UpcomingStatuses, b.Status)
}

// IsPast is the counterpart of IsUpcoming for the past listing. A booking
// can satisfy neither, for example a confirmed trip already under way.
func IsPast(b *Booking, today time.Time) bool {
	return b.ReturnDate.Before(today) && slices.Contains(PastStatuses, b.Status)
}

func TransitionError(from, to BookingStatus) *Error {
	return Conflict(fmt.Sprintf("Cannot change booking status from %s to %s", from, to)).
		With("currentStatus", string(from))
}

type StatusEntry struct {
	Status    BookingStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

type GuestDetail struct {
	FirstName   string  `json:"firstName" validate:"required,max=100"`
	LastName    string  `json:"lastName" validate:"required,max=100"`
	DateOfBirth *string `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Nationality *string `json:"nationality,omitempty" validate:"omitempty,max=100"`
	Passport    *string `json:"passportNumber,omitempty" validate:"omitempty,max=30"`
}

type Booking struct {
	ID                 int64         `json:"id"`
	UserID             int64         `json:"userId"`
	CruiseID           int64         `json:"cruiseId"`
	BookingReference   string        `json:"bookingReference"`
	BookingDate        time.Time     `json:"bookingDate"`
	DepartureDate      time.Time     `json:"departureDate"`
	ReturnDate         time.Time     `json:"returnDate"`
	TotalPrice         int64         `json:"totalPrice"`
	NumberOfGuests     int           `json:"numberOfGuests"`
	CabinType          string        `json:"cabinType"`
	GuestDetails       []GuestDetail `json:"guestDetails"`
	Status             BookingStatus `json:"status"`
	StatusHistory      []StatusEntry `json:"statusHistory"`
	Version            int           `json:"version"`
	CancellationReason *string       `json:"cancellationReason"`
	CancellationNotes  *string       `json:"cancellationNotes"`
	CancellationDate   *time.Time    `json:"cancellationDate"`
	RefundAmount       *int64        `json:"refundAmount"`
	RefundDate         *time.Time    `json:"refundDate"`
	CheckedIn          bool          `json:"checkedIn"`
	CheckInDate        *time.Time    `json:"checkInDate"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func (b *Booking) IsOwnedBy(userID int64) bool {
	return b.UserID == userID
}

// Transition describes one status change applied atomically with its history row.
type Transition struct {
	BookingID       int64
	ExpectedVersion int
	To              BookingStatus
	At              time.Time

	CancellationReason *string
	CancellationNotes  *string
	RefundAmount       *int64
}

const dateLayout = "2006-01-02"

type CreateBookingRequest struct {
	CruiseID       int64         `json:"cruiseId" validate:"required,gt=0"`
	DepartureDate  string        `json:"departureDate" validate:"required,datetime=2006-01-02"`
	ReturnDate     *string       `json:"returnDate" validate:"omitempty,datetime=2006-01-02"`
	TotalPrice     *int64        `json:"totalPrice" validate:"omitempty,gt=0"`
	NumberOfGuests int           `json:"numberOfGuests" validate:"required,min=1,max=20"`
	CabinType      string        `json:"cabinType" validate:"required,max=50"`
	GuestDetails   []GuestDetail `json:"guestDetails" validate:"required,dive"`
}

func (r *CreateBookingRequest) Normalize() {
	r.CabinType = strings.TrimSpace(r.CabinType)
	r.DepartureDate = strings.TrimSpace(r.DepartureDate)
	for i := range r.GuestDetails {
		r.GuestDetails[i].FirstName = strings.TrimSpace(r.GuestDetails[i].FirstName)
		r.GuestDetails[i].LastName = strings.TrimSpace(r.GuestDetails[i].LastName)
	}
}

// Validate checks the request shape and returns the parsed departure and
// optional return dates.
func (r *CreateBookingRequest) Validate(now time.Time) (time.Time, *time.Time, error) {
	if err := ValidateStruct(r); err != nil {
		return time.Time{}, nil, err
	}
	if len(r.GuestDetails) != r.NumberOfGuests {
		return time.Time{}, nil, FieldError("guestDetails", "Guest details must be provided for every guest")
	}
	departure, err := time.Parse(dateLayout, r.DepartureDate)
	if err != nil {
		return time.Time{}, nil, FieldError("departureDate", "Departure date is invalid")
	}
	if !departure.After(Today(now)) {
		return time.Time{}, nil, FieldError("departureDate", "Departure date must be in the future")
	}
	var ret *time.Time
	if r.ReturnDate != nil {
		rd, err := time.Parse(dateLayout, *r.ReturnDate)
		if err != nil {
			return time.Time{}, nil, FieldError("returnDate", "Return date is invalid")
		}
		if !rd.After(departure) {
			return time.Time{}, nil, FieldError("returnDate", "Return date must be after the departure date")
		}
		ret = &rd
	}
	return departure, ret, nil
}

// Today truncates t to midnight UTC, matching the DATE columns.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CancelBookingRequest struct {
	Reason string  `json:"reason" validate:"required,max=500"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

func (r *CancelBookingRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *CancelBookingRequest) Validate() error {
	return ValidateStruct(r)
}

type RefundRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (r *RefundRequest) Validate() error {
	return ValidateStruct(r)
}
