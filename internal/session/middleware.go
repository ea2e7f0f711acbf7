package session

import (
	"context"
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type ctxKey struct{}

func WithUser(ctx context.Context, u *domain.User) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, u)
	return context.WithValue(ctx, logger.UserIDKey, u.ID)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(ctxKey{}).(*domain.User)
	return u
}

// Load resolves the session on every request. Requests without a usable
// session continue anonymously.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Resolve(r.Context(), w, r)
		if err != nil {
			logger.ErrorContext(r.Context(), "Session lookup failed", "error", err)
		}
		if user != nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests that Load did not authenticate.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			response.Error(w, r, domain.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
