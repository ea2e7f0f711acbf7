package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/pkg/database"
)

// ErrDuplicateUsername and ErrDuplicateEmail are returned when a write hits
// the unique indexes, for example when two registrations race.
var (
	ErrDuplicateUsername = errors.New("username already registered")
	ErrDuplicateEmail    = errors.New("email already registered")
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, email *string, p domain.ProfileFields) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	SetResetToken(ctx context.Context, userID int64, tokenHash string, expiry time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (int64, bool, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, username, email, password_hash,
first_name, last_name, phone, address, city, state, zip_code, country,
is_verified, last_login, reset_token_hash, reset_token_expiry, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.Phone, &u.Address, &u.City, &u.State, &u.ZipCode, &u.Country,
		&u.IsVerified, &u.LastLogin, &u.ResetTokenHash, &u.ResetTokenExpiry, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func mapUserConflict(err error) error {
	switch {
	case database.IsUniqueViolation(err, "users_username_key"):
		return ErrDuplicateUsername
	case database.IsUniqueViolation(err, "users_email_key"):
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `INSERT INTO users (
		username, email, password_hash,
		first_name, last_name, phone, address, city, state, zip_code, country
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	created, err := scanUser(r.pool.QueryRow(ctx, q,
		u.Username, u.Email, u.PasswordHash,
		u.FirstName, u.LastName, u.Phone, u.Address, u.City, u.State, u.ZipCode, u.Country,
	))
	if err != nil {
		return nil, mapUserConflict(err)
	}
	return created, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(username)=lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, username))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email)=lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, email *string, p domain.ProfileFields) (*domain.User, error) {
	const q = `UPDATE users SET
		email = COALESCE($2, email),
		first_name = COALESCE($3, first_name),
		last_name = COALESCE($4, last_name),
		phone = COALESCE($5, phone),
		address = COALESCE($6, address),
		city = COALESCE($7, city),
		state = COALESCE($8, state),
		zip_code = COALESCE($9, zip_code),
		country = COALESCE($10, country),
		updated_at = now()
	WHERE id=$1
	RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id, email,
		p.FirstName, p.LastName, p.Phone, p.Address, p.City, p.State, p.ZipCode, p.Country,
	))
	if err != nil {
		return nil, mapUserConflict(err)
	}
	return u, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET last_login=$2 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

func (r *userRepository) SetResetToken(ctx context.Context, userID int64, tokenHash string, expiry time.Time) error {
	const q = `UPDATE users SET reset_token_hash=$2, reset_token_expiry=$3, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, userID, tokenHash, expiry)
	return err
}

// ConsumeResetToken swaps the password and clears the token in one statement,
// so two concurrent uses of a token cannot both succeed.
func (r *userRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (int64, bool, error) {
	const q = `UPDATE users SET
		password_hash=$2, reset_token_hash=NULL, reset_token_expiry=NULL, updated_at=now()
	WHERE reset_token_hash=$1 AND reset_token_expiry > $3
	RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, q, tokenHash, newPasswordHash, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
