package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/credentials"
	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/lockout"
	"github.com/diagnosis/cruise-bookings/internal/mailer"
	"github.com/diagnosis/cruise-bookings/internal/repository"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, req *domain.ResetRequest) (*ResetIssued, error)
	ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error
	UpdateProfile(ctx context.Context, userID int64, req *domain.UpdateProfileRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, userID int64, req *domain.ChangePasswordRequest) error
}

// ResetIssued carries the token back to the handler. Token is empty when the
// email is unknown; callers must answer identically either way.
type ResetIssued struct {
	Token string
	Link  string
}

type AccountConfig struct {
	BaseURL       string
	NotifyTimeout time.Duration
}

type accountService struct {
	users   repository.UserRepository
	hasher  *credentials.Hasher
	resets  *credentials.ResetTokens
	lockout *lockout.Tracker
	mailer  mailer.Service
	cfg     AccountConfig
	now     func() time.Time
}

func NewAccountService(
	users repository.UserRepository,
	hasher *credentials.Hasher,
	resets *credentials.ResetTokens,
	tracker *lockout.Tracker,
	mail mailer.Service,
	cfg AccountConfig,
) AccountService {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &accountService{
		users:   users,
		hasher:  hasher,
		resets:  resets,
		lockout: tracker,
		mailer:  mail,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *accountService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrUsernameTaken
	}
	existing, err = s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p := req.ProfileFields
	user, err := s.users.Create(ctx, &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Phone:        p.Phone,
		Address:      p.Address,
		City:         p.City,
		State:        p.State,
		ZipCode:      p.ZipCode,
		Country:      p.Country,
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		return nil, domain.ErrUsernameTaken
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, domain.ErrEmailTaken
	case err != nil:
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.InfoContext(ctx, "User registered", "user_id", user.ID)
	return user, nil
}

func (s *accountService) Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := lockout.Key(req.Username, clientIP)
	st, err := s.lockout.Check(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check lockout: %w", err)
	}
	if st.Locked {
		logger.WarnContext(ctx, "Login rejected while locked", "username", req.Username, "ip", clientIP)
		return nil, lockedError(st)
	}

	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, s.loginFailed(ctx, key, req.Username, "unknown username")
	}

	ok, needsRehash, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, key, req.Username, "wrong password")
	}

	if err := s.lockout.Reset(ctx, key); err != nil {
		logger.WarnContext(ctx, "Failed to reset lockout state", "error", err)
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record last login: %w", err)
	}
	user.LastLogin = &now

	if needsRehash {
		if hash, err := s.hasher.Hash(req.Password); err != nil {
			logger.WarnContext(ctx, "Password rehash failed", "user_id", user.ID, "error", err)
		} else if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
			logger.WarnContext(ctx, "Password rehash not stored", "user_id", user.ID, "error", err)
		} else {
			user.PasswordHash = hash
			logger.InfoContext(ctx, "Password hash upgraded", "user_id", user.ID)
		}
	}

	return user, nil
}

func (s *accountService) loginFailed(ctx context.Context, key, username, reason string) error {
	st, err := s.lockout.RecordFailure(ctx, key)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	logger.WarnContext(ctx, "Login failed",
		"username", username,
		"reason", reason,
		"failures", st.Failures,
	)
	if st.Locked {
		logger.WarnContext(ctx, "Lockout threshold reached", "username", username, "until", st.LockedUntil)
		return lockedError(st)
	}
	return domain.ErrInvalidCredentials.With("remainingAttempts", st.Remaining)
}

func lockedError(st lockout.Status) error {
	hours := st.LockHours()
	unit := "hours"
	if hours == 1 {
		unit = "hour"
	}
	msg := fmt.Sprintf("Account temporarily locked for security. Please try again in %d %s or contact customer support.", hours, unit)
	return domain.TooManyRequests(msg).
		With("code", domain.CodeAccountLocked).
		With("locked", true).
		With("lockExpiresIn", hours).
		WithRetryAfter(st.RetryAfter)
}

func (s *accountService) RequestPasswordReset(ctx context.Context, req *domain.ResetRequest) (*ResetIssued, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	token, user, err := s.resets.Issue(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		logger.InfoContext(ctx, "Password reset requested for unknown email")
		return &ResetIssued{}, nil
	}

	link := s.resetLink(token)
	notifyCtx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.mailer.SendPasswordReset(notifyCtx, user.Email, displayName(user), link); err != nil {
		logger.ErrorContext(ctx, "Failed to send password reset email", "user_id", user.ID, "error", err)
	}

	return &ResetIssued{Token: token, Link: link}, nil
}

func (s *accountService) resetLink(token string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + "/reset-password?token=" + url.QueryEscape(token)
}

func displayName(u *domain.User) string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	if len(parts) == 0 {
		return u.Username
	}
	return strings.Join(parts, " ")
}

func (s *accountService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	userID, ok, err := s.resets.Consume(ctx, req.Token, hash)
	if err != nil {
		return err
	}
	if !ok {
		logger.WarnContext(ctx, "Invalid or expired reset token presented")
		return domain.ErrInvalidResetToken
	}

	logger.InfoContext(ctx, "Password reset", "user_id", userID)
	return nil
}

func (s *accountService) UpdateProfile(ctx context.Context, userID int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if current == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if req.Empty() {
		return current, nil
	}

	email := req.Email
	if email != nil && strings.EqualFold(*email, current.Email) {
		email = nil
	}
	if email != nil {
		other, err := s.users.GetByEmail(ctx, *email)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if other != nil && other.ID != userID {
			return nil, domain.ErrEmailTaken
		}
	}

	updated, err := s.users.UpdateProfile(ctx, userID, email, req.ProfileFields)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (s *accountService) ChangePassword(ctx context.Context, userID int64, req *domain.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return domain.ErrNotAuthenticated
	}

	ok, _, err := s.hasher.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.ErrWrongPassword
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	logger.InfoContext(ctx, "Password changed", "user_id", userID)
	return nil
}
