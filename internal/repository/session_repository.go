package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/cruise-bookings/internal/session"
)

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository stores sessions by the hash of their cookie value.
func NewSessionRepository(pool *pgxpool.Pool) session.Store {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Create(ctx context.Context, idHash string, userID int64, expiresAt time.Time) error {
	const q = `INSERT INTO sessions (id_hash, user_id, expires_at) VALUES ($1,$2,$3)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, idHash, userID, expiresAt)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, idHash string) (*session.Record, error) {
	const q = `SELECT id_hash, user_id, expires_at, created_at FROM sessions WHERE id_hash=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rec session.Record
	err := r.pool.QueryRow(ctx, q, idHash).Scan(&rec.IDHash, &rec.UserID, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *sessionRepository) Extend(ctx context.Context, idHash string, expiresAt time.Time) error {
	const q = `UPDATE sessions SET expires_at=$2 WHERE id_hash=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, idHash, expiresAt)
	return err
}

func (r *sessionRepository) Delete(ctx context.Context, idHash string) error {
	const q = `DELETE FROM sessions WHERE id_hash=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, idHash)
	return err
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
