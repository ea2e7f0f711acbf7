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

var (
	// ErrStaleVersion means the booking changed since it was read.
	ErrStaleVersion = errors.New("booking version mismatch")
	// ErrDuplicateReference means a generated booking reference collided.
	ErrDuplicateReference = errors.New("booking reference already exists")
)

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListUpcoming(ctx context.Context, userID int64, today time.Time) ([]domain.Booking, error)
	ListPast(ctx context.Context, userID int64, today time.Time) ([]domain.Booking, error)
	ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Booking, error)
	CheckIn(ctx context.Context, id int64, expectedVersion int, at time.Time) (*domain.Booking, error)
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const bookingCols = `id, user_id, cruise_id, booking_reference,
booking_date, departure_date, return_date,
total_price, number_of_guests, cabin_type, guest_details,
status, version,
cancellation_reason, cancellation_notes, cancellation_date,
refund_amount, refund_date, checked_in, check_in_date,
created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var guests []byte
	err := row.Scan(
		&b.ID, &b.UserID, &b.CruiseID, &b.BookingReference,
		&b.BookingDate, &b.DepartureDate, &b.ReturnDate,
		&b.TotalPrice, &b.NumberOfGuests, &b.CabinType, &guests,
		&b.Status, &b.Version,
		&b.CancellationReason, &b.CancellationNotes, &b.CancellationDate,
		&b.RefundAmount, &b.RefundDate, &b.CheckedIn, &b.CheckInDate,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(guests) > 0 {
		if err := json.Unmarshal(guests, &b.GuestDetails); err != nil {
			return nil, fmt.Errorf("decode guest details for booking %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	const q = `INSERT INTO bookings (
		user_id, cruise_id, booking_reference, booking_date,
		departure_date, return_date, total_price, number_of_guests,
		cabin_type, guest_details, status, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',$4,$4)
	RETURNING ` + bookingCols

	guests, err := json.Marshal(b.GuestDetails)
	if err != nil {
		return nil, fmt.Errorf("encode guest details: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var created *domain.Booking
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = scanBooking(tx.QueryRow(ctx, q,
			b.UserID, b.CruiseID, b.BookingReference, b.BookingDate,
			b.DepartureDate, b.ReturnDate, b.TotalPrice, b.NumberOfGuests,
			b.CabinType, string(guests),
		))
		if err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, created.ID, created.Status, b.BookingDate); err != nil {
			return err
		}
		created.StatusHistory, err = loadHistory(ctx, tx, created.ID)
		return err
	})
	if database.IsUniqueViolation(err, "bookings_reference_key") {
		return nil, ErrDuplicateReference
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.StatusHistory, err = loadHistory(ctx, r.pool, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, userID)
}

func (r *bookingRepository) ListUpcoming(ctx context.Context, userID int64, today time.Time) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
	WHERE user_id=$1 AND departure_date > $2 AND status = ANY($3)
	ORDER BY departure_date ASC, id ASC`
	return r.list(ctx, q, userID, today, statusStrings(domain.UpcomingStatuses))
}

func (r *bookingRepository) ListPast(ctx context.Context, userID int64, today time.Time) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
	WHERE user_id=$1 AND return_date < $2 AND status = ANY($3)
	ORDER BY return_date DESC, id DESC`
	return r.list(ctx, q, userID, today, statusStrings(domain.PastStatuses))
}

func (r *bookingRepository) list(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachHistories(ctx, r.pool, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ApplyTransition updates the status and appends its history row in one
// transaction, guarded by the version the caller read.
func (r *bookingRepository) ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = applyTransition(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookingRepository) CheckIn(ctx context.Context, id int64, expectedVersion int, at time.Time) (*domain.Booking, error) {
	const q = `UPDATE bookings SET checked_in=TRUE, check_in_date=$3, version=version+1, updated_at=$3
	WHERE id=$1 AND version=$2
	RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id, expectedVersion, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleVersion
	}
	if err != nil {
		return nil, err
	}
	if b.StatusHistory, err = loadHistory(ctx, r.pool, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func applyTransition(ctx context.Context, tx pgx.Tx, t domain.Transition) (*domain.Booking, error) {
	const q = `UPDATE bookings SET
		status = $3::text,
		cancellation_reason = COALESCE($4, cancellation_reason),
		cancellation_notes = COALESCE($5, cancellation_notes),
		cancellation_date = CASE WHEN $3::text = 'cancelled' THEN $7::timestamptz ELSE cancellation_date END,
		refund_amount = COALESCE($6, refund_amount),
		refund_date = CASE WHEN $3::text = 'refunded' THEN $7::timestamptz ELSE refund_date END,
		version = version + 1,
		updated_at = $7::timestamptz
	WHERE id=$1 AND version=$2
	RETURNING ` + bookingCols

	b, err := scanBooking(tx.QueryRow(ctx, q,
		t.BookingID, t.ExpectedVersion, string(t.To),
		t.CancellationReason, t.CancellationNotes, t.RefundAmount, t.At,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleVersion
	}
	if err != nil {
		return nil, err
	}
	if err := appendHistory(ctx, tx, b.ID, b.Status, t.At); err != nil {
		return nil, err
	}
	if b.StatusHistory, err = loadHistory(ctx, tx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, bookingID int64, status domain.BookingStatus, at time.Time) error {
	const q = `INSERT INTO booking_status_history (booking_id, status, changed_at) VALUES ($1,$2,$3)`
	_, err := tx.Exec(ctx, q, bookingID, string(status), at)
	return err
}

func loadHistory(ctx context.Context, db querier, bookingID int64) ([]domain.StatusEntry, error) {
	const q = `SELECT status, changed_at FROM booking_status_history WHERE booking_id=$1 ORDER BY id`
	rows, err := db.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.StatusEntry{}
	for rows.Next() {
		var e domain.StatusEntry
		if err := rows.Scan(&e.Status, &e.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func attachHistories(ctx context.Context, db querier, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]int64, len(bookings))
	index := make(map[int64]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
		bookings[i].StatusHistory = []domain.StatusEntry{}
	}

	const q = `SELECT booking_id, status, changed_at FROM booking_status_history
	WHERE booking_id = ANY($1) ORDER BY booking_id, id`
	rows, err := db.Query(ctx, q, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var e domain.StatusEntry
		if err := rows.Scan(&id, &e.Status, &e.Timestamp); err != nil {
			return err
		}
		i := index[id]
		bookings[i].StatusHistory = append(bookings[i].StatusHistory, e)
	}
	return rows.Err()
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
