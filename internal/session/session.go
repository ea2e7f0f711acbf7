// Package session keeps server-side login sessions keyed by an opaque cookie.
// The store only ever sees a hash of the cookie value and the user id.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type Record struct {
	IDHash    string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Store interface {
	Create(ctx context.Context, idHash string, userID int64, expiresAt time.Time) error
	Get(ctx context.Context, idHash string) (*Record, error)
	Extend(ctx context.Context, idHash string, expiresAt time.Time) error
	Delete(ctx context.Context, idHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

type Manager struct {
	store Store
	users UserLoader
	cfg   Config
	now   func() time.Time
}

func NewManager(store Store, users UserLoader, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "cruise_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	return &Manager{store: store, users: users, cfg: cfg, now: time.Now}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) CookieName() string { return m.cfg.CookieName }

func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func newID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Establish starts a session for userID. Any session presented on r is
// discarded first so a pre-login cookie cannot be carried into the new login.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
		if err := m.store.Delete(ctx, hashID(c.Value)); err != nil {
			return fmt.Errorf("drop previous session: %w", err)
		}
	}

	id, err := newID()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}
	expires := m.now().Add(m.cfg.TTL)
	if err := m.store.Create(ctx, hashID(id), userID, expires); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.setCookie(w, id, expires)
	return nil
}

// Resolve returns the user behind r's session cookie, or nil when there is no
// usable session. Stale or orphaned sessions are removed and their cookie
// cleared without reporting an error.
func (m *Manager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (*domain.User, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	idHash := hashID(c.Value)

	rec, err := m.store.Get(ctx, idHash)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	now := m.now()
	if rec == nil || !now.Before(rec.ExpiresAt) {
		m.invalidate(ctx, w, idHash, rec != nil)
		return nil, nil
	}

	user, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if user == nil {
		m.invalidate(ctx, w, idHash, true)
		return nil, nil
	}

	// slide the expiry once less than half the lifetime remains
	if rec.ExpiresAt.Sub(now) < m.cfg.TTL/2 {
		expires := now.Add(m.cfg.TTL)
		if err := m.store.Extend(ctx, idHash, expires); err != nil {
			logger.WarnContext(ctx, "Failed to extend session", "error", err)
		} else {
			m.setCookie(w, c.Value, expires)
		}
	}
	return user, nil
}

// Destroy ends the session on r. It succeeds when there is none.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(m.cfg.CookieName)
	if err == nil && c.Value != "" {
		if err := m.store.Delete(ctx, hashID(c.Value)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	m.clearCookie(w)
	return nil
}

func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) invalidate(ctx context.Context, w http.ResponseWriter, idHash string, exists bool) {
	if exists {
		if err := m.store.Delete(ctx, idHash); err != nil {
			logger.WarnContext(ctx, "Failed to delete invalid session", "error", err)
		}
	}
	m.clearCookie(w)
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(m.now()).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
