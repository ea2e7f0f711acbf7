package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/cruise-bookings/internal/domain"
)

// ResetStore is the persistence the reset flow needs. ConsumeResetToken must
// match, swap the hash and clear the token in one statement.
type ResetStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetResetToken(ctx context.Context, userID int64, tokenHash string, expiry time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (int64, bool, error)
}

type ResetTokens struct {
	store ResetStore
	ttl   time.Duration
	now   func() time.Time
}

func NewResetTokens(store ResetStore, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ResetTokens{store: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (r *ResetTokens) WithClock(now func() time.Time) *ResetTokens {
	r.now = now
	return r
}

// HashToken is the storage form of a reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a reset token for the account registered to email. An unknown
// email yields an empty token and a nil user with no error.
func (r *ResetTokens) Issue(ctx context.Context, email string) (string, *domain.User, error) {
	user, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("lookup user for reset: %w", err)
	}
	if user == nil {
		return "", nil, nil
	}

	token := uuid.NewString()
	expiry := r.now().Add(r.ttl)
	if err := r.store.SetResetToken(ctx, user.ID, HashToken(token), expiry); err != nil {
		return "", nil, fmt.Errorf("store reset token: %w", err)
	}
	return token, user, nil
}

// Consume swaps in newPasswordHash if token is current, clearing it so the
// token cannot be used again.
func (r *ResetTokens) Consume(ctx context.Context, token, newPasswordHash string) (int64, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	userID, ok, err := r.store.ConsumeResetToken(ctx, HashToken(token), newPasswordHash, r.now())
	if err != nil {
		return 0, false, fmt.Errorf("consume reset token: %w", err)
	}
	return userID, ok, nil
}

func (r *ResetTokens) TTL() time.Duration { return r.ttl }
