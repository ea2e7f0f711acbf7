package middleware

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/http/response"
	"github.com/diagnosis/cruise-bookings/pkg/kv"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Name     string                         // Namespace for the window counters
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	Message  string                         // Body message when throttled
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting
}

// RateLimiter counts requests per key in fixed windows held in the KV store.
type RateLimiter struct {
	store  kv.Store
	config RateLimitConfig
}

func NewRateLimiter(store kv.Store, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	if config.Message == "" {
		config.Message = "Too many requests from this IP, please try again later"
	}
	if config.Name == "" {
		config.Name = "global"
	}
	return &RateLimiter{store: store, config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				allowed, retry := rl.allow(r, key)
				if allowed {
					continue
				}
				logger.WarnContext(r.Context(), "Request throttled",
					"limiter", rl.config.Name,
					"path", r.URL.Path,
					"ip", ClientIP(r),
				)
				if retry > 0 {
					response.SetRetryAfter(w, retry)
				}
				response.RateLimit(w, rl.config.Message, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow counts one request against key. A store failure lets the request through.
func (rl *RateLimiter) allow(r *http.Request, key string) (bool, time.Duration) {
	ctx := r.Context()
	k := rl.windowKey(key)

	count, err := rl.store.Incr(ctx, k, rl.config.Window)
	if err != nil {
		logger.ErrorContext(ctx, "Rate limit store unavailable, allowing request", "limiter", rl.config.Name, "error", err)
		return true, 0
	}
	if int(count) <= rl.config.Requests {
		return true, 0
	}

	retry, err := rl.store.TTL(ctx, k)
	if err != nil || retry <= 0 {
		retry = rl.config.Window
	}
	return false, retry
}

// windowKey hashes the client key so raw addresses are not stored.
func (rl *RateLimiter) windowKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("ratelimit:%s:%x", rl.config.Name, sum[:16])
}

// ClientIPKeyFunc limits by client address.
func ClientIPKeyFunc(r *http.Request) []string {
	if ip := ClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// ClientIP extracts the real client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
