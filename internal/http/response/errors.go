package response

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeCSRFInvalid   = "CSRF_INVALID"
	CodeInternalError = "INTERNAL_ERROR"
)

var kindStatus = map[domain.ErrorKind]struct {
	status int
	code   string
}{
	domain.KindValidation:     {http.StatusBadRequest, CodeInvalidInput},
	domain.KindAuthentication: {http.StatusUnauthorized, CodeUnauthorized},
	domain.KindAuthorization:  {http.StatusForbidden, CodeForbidden},
	domain.KindNotFound:       {http.StatusNotFound, CodeNotFound},
	domain.KindConflict:       {http.StatusConflict, CodeConflict},
	domain.KindRateLimit:      {http.StatusTooManyRequests, CodeRateLimit},
	domain.KindCSRF:           {http.StatusForbidden, CodeCSRFInvalid},
}

// WriteError writes {message, code, ...fields}.
func WriteError(w http.ResponseWriter, statusCode int, message, code string, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["message"] = message
	if code != "" {
		if _, set := body["code"]; !set {
			body["code"] = code
		}
	}
	JSON(w, statusCode, body)
}

// Error maps err onto the response taxonomy. Domain errors are shown as is;
// anything else is logged and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		if m, ok := kindStatus[de.Kind]; ok {
			if de.RetryAfter > 0 {
				SetRetryAfter(w, de.RetryAfter)
			}
			WriteError(w, m.status, de.Message, m.code, de.Fields)
			return
		}
	}
	logger.ErrorContext(r.Context(), "Unhandled error",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
	)
	InternalError(w)
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// Message writes {message}.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}

func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError, nil)
}

func RateLimit(w http.ResponseWriter, message string, fields map[string]any) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit, fields)
}

func CSRF(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, "Invalid CSRF token", CodeCSRFInvalid, nil)
}

// SetRetryAfter writes d as whole seconds, rounded up.
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
}
