// Package csrf issues and validates anti-forgery tokens.
//
// A browser is bound to a random secret through an opaque http-only cookie.
// Tokens are HS256 JWTs signed with that secret whose subject is the binding
// id, so a token only validates alongside the cookie it was minted for. The
// token is also mirrored into a readable XSRF-TOKEN cookie for double-submit
// clients.
package csrf

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/diagnosis/cruise-bookings/pkg/kv"
)

const (
	HeaderName     = "X-CSRF-Token"
	AltHeaderName  = "X-XSRF-Token"
	FormField      = "_csrf"
	ReadableCookie = "XSRF-TOKEN"
)

var ErrInvalidToken = errors.New("csrf: invalid token")

type Token struct {
	Value     string    `json:"csrfToken"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

type Manager struct {
	store  kv.Store
	cookie string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(store kv.Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "cruise_csrf"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{store: store, cookie: cfg.CookieName, ttl: cfg.TTL, secure: cfg.Secure, now: time.Now}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func bindingKey(id string) string { return "csrf:" + id }

// Issue returns a token for the caller's binding, creating the binding when
// the cookie is absent or no longer known.
func (m *Manager) Issue(ctx context.Context, w http.ResponseWriter, r *http.Request) (Token, error) {
	id, secret, err := m.binding(ctx, r)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return Token{}, err
	}
	if id == "" {
		if id, secret, err = m.newBinding(ctx); err != nil {
			return Token{}, err
		}
	} else if err := m.store.Set(ctx, bindingKey(id), secret, m.ttl); err != nil {
		return Token{}, fmt.Errorf("refresh csrf binding: %w", err)
	}
	return m.mint(w, id, secret)
}

// Rotate discards the caller's binding and starts a new one. Tokens issued
// before rotation stop validating.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, r *http.Request) (Token, error) {
	if c, err := r.Cookie(m.cookie); err == nil && c.Value != "" {
		if err := m.store.Delete(ctx, bindingKey(c.Value)); err != nil {
			return Token{}, fmt.Errorf("drop csrf binding: %w", err)
		}
	}
	id, secret, err := m.newBinding(ctx)
	if err != nil {
		return Token{}, err
	}
	return m.mint(w, id, secret)
}

// Validate checks the token carried by r against r's binding cookie.
func (m *Manager) Validate(ctx context.Context, r *http.Request) error {
	presented := TokenFromRequest(r)
	if presented == "" {
		return ErrInvalidToken
	}
	id, secret, err := m.binding(ctx, r)
	if errors.Is(err, kv.ErrNotFound) || id == "" {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	_, err = jwt.ParseWithClaims(presented, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(id),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return ErrInvalidToken
	}
	return nil
}

// TokenFromRequest reads the presented token from the headers or a form field.
func TokenFromRequest(r *http.Request) string {
	if v := r.Header.Get(HeaderName); v != "" {
		return v
	}
	if v := r.Header.Get(AltHeaderName); v != "" {
		return v
	}
	ct := r.Header.Get("Content-Type")
	if ct == "application/x-www-form-urlencoded" {
		return r.PostFormValue(FormField)
	}
	return ""
}

func (m *Manager) binding(ctx context.Context, r *http.Request) (string, string, error) {
	c, err := r.Cookie(m.cookie)
	if err != nil || c.Value == "" {
		return "", "", nil
	}
	secret, err := m.store.Get(ctx, bindingKey(c.Value))
	if errors.Is(err, kv.ErrNotFound) {
		return "", "", kv.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("load csrf binding: %w", err)
	}
	return c.Value, secret, nil
}

func (m *Manager) newBinding(ctx context.Context) (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate csrf secret: %w", err)
	}
	id := uuid.NewString()
	secret := base64.RawURLEncoding.EncodeToString(buf)
	if err := m.store.Set(ctx, bindingKey(id), secret, m.ttl); err != nil {
		return "", "", fmt.Errorf("store csrf binding: %w", err)
	}
	return id, secret, nil
}

func (m *Manager) mint(w http.ResponseWriter, id, secret string) (Token, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign csrf token: %w", err)
	}

	maxAge := int(m.ttl.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     ReadableCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return Token{Value: signed, IssuedAt: now, ExpiresAt: exp}, nil
}
