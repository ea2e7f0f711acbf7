// Package kv is the shared key-value store behind lockout counters, CSRF
// bindings and rate-limit windows. Redis serves multi-instance deployments;
// the in-memory store serves a single process and tests.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments key and returns the new value. The ttl is
	// applied only when the key is created by this call.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL reports the remaining lifetime of key, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
