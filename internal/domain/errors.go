package domain

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindCSRF
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindCSRF:
		return "csrf"
	default:
		return "internal"
	}
}

// Error is a failure that is safe to show to the caller. Fields are merged
// into the JSON error body next to message.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]any
	// RetryAfter is sent as the Retry-After header when set.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// With returns a copy of e carrying an extra body field.
func (e *Error) With(key string, value any) *Error {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Fields: fields, RetryAfter: e.RetryAfter}
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	out := *e
	out.RetryAfter = d
	return &out
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error     { return NewError(KindValidation, msg) }
func Unauthenticated(msg string) *Error { return NewError(KindAuthentication, msg) }
func Forbidden(msg string) *Error      { return NewError(KindAuthorization, msg) }
func NotFound(msg string) *Error       { return NewError(KindNotFound, msg) }
func Conflict(msg string) *Error       { return NewError(KindConflict, msg) }
func TooManyRequests(msg string) *Error { return NewError(KindRateLimit, msg) }

// FieldError is a validation failure pinned to one input field.
func FieldError(field, msg string) *Error {
	return Validation(msg).With("field", field)
}

// KindOf reports the kind of a domain error anywhere in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeAccountLocked overrides the rate-limit code on lockout responses.
const CodeAccountLocked = "ACCOUNT_LOCKED"

var (
	ErrNotAuthenticated   = Unauthenticated("Not authenticated")
	ErrInvalidCredentials = Unauthenticated("Invalid username or password")
	ErrUsernameTaken      = Conflict("Username already exists").With("field", "username")
	ErrEmailTaken         = Conflict("Email already exists").With("field", "email")
	ErrWrongPassword      = FieldError("currentPassword", "Current password is incorrect")
	ErrInvalidResetToken  = Validation("Invalid or expired token")

	ErrBookingNotFound    = NotFound("Booking not found")
	ErrBookingViewDenied  = Forbidden("Not authorized to view this booking")
	ErrBookingEditDenied  = Forbidden("Not authorized to update this booking")
	ErrInvalidBookingID   = Validation("Invalid booking ID")
	ErrInvalidStatus      = FieldError("status", "Invalid status")
	ErrStaleBooking       = Conflict("Booking was modified concurrently, reload and try again")
	ErrAlreadyCheckedIn   = Conflict("Passengers already checked in")
	ErrCruiseNotFound     = NotFound("Cruise not found")
	ErrPaymentRecorded    = Conflict("Payment has already been recorded")
	ErrDestinationMissing = NotFound("Destination not found")

	ErrEnquiryNotFound   = NotFound("Enquiry not found")
	ErrInvalidEnquiryID  = Validation("Invalid enquiry ID")
	ErrUserNotFound      = NotFound("User not found")

	ErrTestimonialNotFound = NotFound("Testimonial not found")
)
