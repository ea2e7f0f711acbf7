package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/cruise-bookings/internal/domain"
)

// ErrStaleStatus means the enquiry status moved on since it was read.
var ErrStaleStatus = errors.New("enquiry status changed")

type EnquiryRepository interface {
	Create(ctx context.Context, e *domain.Enquiry) (*domain.Enquiry, error)
	GetByID(ctx context.Context, id int64) (*domain.Enquiry, error)
	List(ctx context.Context) ([]domain.Enquiry, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Enquiry, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.EnquiryStatus) (*domain.Enquiry, error)
	Assign(ctx context.Context, id, assigneeID int64) (*domain.Enquiry, error)
	// CreateResponse inserts the response and marks the enquiry responded in one transaction.
	CreateResponse(ctx context.Context, r *domain.EnquiryResponse) (*domain.EnquiryResponse, *domain.Enquiry, error)
	ListResponses(ctx context.Context, enquiryID int64) ([]domain.EnquiryResponse, error)
}

type enquiryRepository struct {
	pool *pgxpool.Pool
}

func NewEnquiryRepository(pool *pgxpool.Pool) EnquiryRepository {
	return &enquiryRepository{pool: pool}
}

const enquiryCols = `id, name, email, phone, subject, message, status,
assigned_to_user_id, user_id, created_at, updated_at`

func scanEnquiry(row pgx.Row) (*domain.Enquiry, error) {
	var e domain.Enquiry
	err := row.Scan(
		&e.ID, &e.Name, &e.Email, &e.Phone, &e.Subject, &e.Message, &e.Status,
		&e.AssignedToUserID, &e.UserID, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enquiryRepository) Create(ctx context.Context, e *domain.Enquiry) (*domain.Enquiry, error) {
	const q = `INSERT INTO enquiries (name, email, phone, subject, message, status, user_id)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING ` + enquiryCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanEnquiry(r.pool.QueryRow(ctx, q, e.Name, e.Email, e.Phone, e.Subject, e.Message, string(e.Status), e.UserID))
}

func (r *enquiryRepository) GetByID(ctx context.Context, id int64) (*domain.Enquiry, error) {
	const q = `SELECT ` + enquiryCols + ` FROM enquiries WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanEnquiry(r.pool.QueryRow(ctx, q, id))
}

func (r *enquiryRepository) List(ctx context.Context) ([]domain.Enquiry, error) {
	const q = `SELECT ` + enquiryCols + ` FROM enquiries ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q)
}

func (r *enquiryRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Enquiry, error) {
	const q = `SELECT ` + enquiryCols + ` FROM enquiries WHERE user_id=$1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, userID)
}

func (r *enquiryRepository) list(ctx context.Context, q string, args ...any) ([]domain.Enquiry, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Enquiry{}
	for rows.Next() {
		e, err := scanEnquiry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateStatus moves the enquiry from one status to another only if it is
// still in from.
func (r *enquiryRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.EnquiryStatus) (*domain.Enquiry, error) {
	const q = `UPDATE enquiries SET status=$3, updated_at=now()
	WHERE id=$1 AND status=$2
	RETURNING ` + enquiryCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e, err := scanEnquiry(r.pool.QueryRow(ctx, q, id, string(from), string(to)))
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrStaleStatus
	}
	return e, nil
}

func (r *enquiryRepository) Assign(ctx context.Context, id, assigneeID int64) (*domain.Enquiry, error) {
	const q = `UPDATE enquiries SET assigned_to_user_id=$2, updated_at=now()
	WHERE id=$1
	RETURNING ` + enquiryCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanEnquiry(r.pool.QueryRow(ctx, q, id, assigneeID))
}

func (r *enquiryRepository) CreateResponse(ctx context.Context, resp *domain.EnquiryResponse) (*domain.EnquiryResponse, *domain.Enquiry, error) {
	const insertQ = `INSERT INTO enquiry_responses (enquiry_id, response_text, responded_by_user_id)
	VALUES ($1,$2,$3)
	RETURNING id, enquiry_id, response_text, responded_by_user_id, responded_at`
	const updateQ = `UPDATE enquiries SET status='responded', updated_at=now()
	WHERE id=$1
	RETURNING ` + enquiryCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		created domain.EnquiryResponse
		parent  *domain.Enquiry
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertQ, resp.EnquiryID, resp.ResponseText, resp.RespondedByUserID).Scan(
			&created.ID, &created.EnquiryID, &created.ResponseText, &created.RespondedByUserID, &created.RespondedAt,
		); err != nil {
			return err
		}
		var err error
		parent, err = scanEnquiry(tx.QueryRow(ctx, updateQ, resp.EnquiryID))
		if err == nil && parent == nil {
			err = pgx.ErrNoRows
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &created, parent, nil
}

func (r *enquiryRepository) ListResponses(ctx context.Context, enquiryID int64) ([]domain.EnquiryResponse, error) {
	const q = `SELECT id, enquiry_id, response_text, responded_by_user_id, responded_at
	FROM enquiry_responses WHERE enquiry_id=$1 ORDER BY responded_at ASC, id ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, enquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.EnquiryResponse{}
	for rows.Next() {
		var e domain.EnquiryResponse
		if err := rows.Scan(&e.ID, &e.EnquiryID, &e.ResponseText, &e.RespondedByUserID, &e.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
