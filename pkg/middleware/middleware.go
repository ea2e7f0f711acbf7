package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/diagnosis/cruise-bookings/pkg/kv"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// RequestID adds a unique request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs HTTP requests with structured logging
func Logging(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{})(next)
}

type StructuredLogger struct{}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &StructuredLogEntry{
		request: r,
		start:   time.Now(),
	}
}

type StructuredLogEntry struct {
	request *http.Request
	start   time.Time
}

func (l *StructuredLogEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	logger.InfoContext(l.request.Context(), "HTTP request completed",
		"method", l.request.Method,
		"path", l.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"user_agent", l.request.UserAgent(),
		"remote_addr", l.request.RemoteAddr,
	)
}

func (l *StructuredLogEntry) Panic(v interface{}, stack []byte) {
	logger.ErrorContext(l.request.Context(), "HTTP request panic",
		"panic", v,
		"stack", string(stack),
		"method", l.request.Method,
		"path", l.request.URL.Path,
	)
}

// ServiceName adds service name to context for logging
func ServiceName(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), logger.ServiceKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Health answers /healthz. ping, when set, checks the database; a failed
// check reports 503.
func Health(ping func(ctx context.Context) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			status, code := "ok", http.StatusOK
			if ping != nil {
				ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
				defer cancel()
				if err := ping(ctx); err != nil {
					logger.WarnContext(r.Context(), "Health check failed", "error", err)
					status, code = "degraded", http.StatusServiceUnavailable
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":    status,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})
	}
}

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL    = 2 * time.Minute
	inFlightMarker = "in-flight"
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Idempotency replays the stored response for a repeated POST carrying the
// same Idempotency-Key. The key is claimed before the handler runs, so a
// concurrent duplicate gets 409 instead of running twice. scope partitions
// keys, typically by user; requests without a key pass through.
func Idempotency(store kv.Store, scope func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			owner := ""
			if scope != nil {
				owner = scope(r)
			}
			sum := sha256.Sum256([]byte(owner + "|" + r.URL.Path + "|" + key))
			storeKey := fmt.Sprintf("idempotency:%x", sum)
			ctx := r.Context()

			claimed, err := store.SetNX(ctx, storeKey, inFlightMarker, inFlightTTL)
			if err != nil {
				logger.ErrorContext(ctx, "Idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				replayOrConflict(w, r, store, storeKey)
				return
			}

			done := false
			defer func() {
				if !done {
					// release the claim so the client can retry
					if err := store.Delete(context.WithoutCancel(ctx), storeKey); err != nil {
						logger.WarnContext(ctx, "Failed to release idempotency key", "error", err)
					}
				}
			}()

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < 200 || recorder.statusCode >= 300 {
				return
			}
			raw, err := json.Marshal(cachedResponse{Status: recorder.statusCode, Body: recorder.body})
			if err != nil {
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), storeKey, string(raw), idempotencyTTL); err != nil {
				logger.WarnContext(ctx, "Failed to store idempotent response", "error", err)
				return
			}
			done = true
		})
	}
}

func replayOrConflict(w http.ResponseWriter, r *http.Request, store kv.Store, storeKey string) {
	var cached cachedResponse
	raw, err := store.Get(r.Context(), storeKey)
	if err != nil || raw == inFlightMarker || json.Unmarshal([]byte(raw), &cached) != nil {
		logger.WarnContext(r.Context(), "Idempotent request already in progress", "path", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "A request with this Idempotency-Key is already in progress",
			"code":    "IDEMPOTENCY_IN_PROGRESS",
		})
		return
	}

	logger.InfoContext(r.Context(), "Replaying idempotent response", "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body = append(r.body, body...)
	return r.ResponseWriter.Write(body)
}
