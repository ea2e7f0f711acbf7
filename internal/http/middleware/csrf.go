package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/csrf"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// CSRFValidator is satisfied by *csrf.Manager.
type CSRFValidator interface {
	Validate(ctx context.Context, r *http.Request) error
}

// CSRFExemptPaths are the mutations a browser makes before it can hold a
// bound token, plus logout.
var CSRFExemptPaths = map[string]bool{
	"/api/auth/login":    true,
	"/api/auth/register": true,
	"/api/auth/logout":   true,
}

// CSRFGuard rejects state-changing requests that do not carry a valid token.
func CSRFGuard(v CSRFValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if CSRFExemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			err := v.Validate(r.Context(), r)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !errors.Is(err, csrf.ErrInvalidToken) {
				logger.ErrorContext(r.Context(), "CSRF validation failed", "error", err)
				response.InternalError(w)
				return
			}
			logger.WarnContext(r.Context(), "CSRF token rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"ip", ClientIP(r),
			)
			response.CSRF(w)
		})
	}
}
