// Package lockout tracks failed logins per identity key and locks the key out
// once the failure threshold is reached.
//
// Per key the state moves Clear -> Counting(n) -> Locked(until). A success
// resets to Clear; an elapsed lock is treated as Clear.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/cruise-bookings/pkg/kv"
)

type Status struct {
	Locked      bool
	LockedUntil time.Time
	RetryAfter  time.Duration
	Failures    int
	Remaining   int // attempts left before lock
}

// LockHours is the remaining lock duration rounded up to whole hours.
func (s Status) LockHours() int {
	if !s.Locked || s.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(s.RetryAfter.Hours()))
}

type Tracker struct {
	store     kv.Store
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func NewTracker(store kv.Store, threshold int, duration time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 12 * time.Hour
	}
	return &Tracker{store: store, threshold: threshold, duration: duration, now: time.Now}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Key builds the identity key: the username when given, else the client IP.
func Key(username, ip string) string {
	if u := strings.ToLower(strings.TrimSpace(username)); u != "" {
		return "user:" + u
	}
	return "ip:" + ip
}

func failKey(key string) string  { return "lockout:fail:" + key }
func untilKey(key string) string { return "lockout:until:" + key }

// Check reports the current state without modifying counters, except that an
// elapsed lock is cleared.
func (t *Tracker) Check(ctx context.Context, key string) (Status, error) {
	if st, locked, err := t.lockState(ctx, key); err != nil || locked {
		return st, err
	}

	raw, err := t.store.Get(ctx, failKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return Status{Remaining: t.threshold}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read failure count: %w", err)
	}
	n, _ := strconv.Atoi(raw)
	return Status{Failures: n, Remaining: max(t.threshold-n, 0)}, nil
}

// RecordFailure counts a failed attempt. The attempt that reaches the
// threshold locks the key and returns a locked status.
func (t *Tracker) RecordFailure(ctx context.Context, key string) (Status, error) {
	if st, locked, err := t.lockState(ctx, key); err != nil || locked {
		return st, err
	}

	n, err := t.store.Incr(ctx, failKey(key), t.duration)
	if err != nil {
		return Status{}, fmt.Errorf("increment failure count: %w", err)
	}
	if int(n) < t.threshold {
		return Status{Failures: int(n), Remaining: t.threshold - int(n)}, nil
	}

	until := t.now().Add(t.duration)
	if err := t.store.Set(ctx, untilKey(key), strconv.FormatInt(until.UnixNano(), 10), t.duration); err != nil {
		return Status{}, fmt.Errorf("store lock: %w", err)
	}
	if err := t.store.Delete(ctx, failKey(key)); err != nil {
		return Status{}, fmt.Errorf("clear failure count: %w", err)
	}
	return Status{Locked: true, LockedUntil: until, RetryAfter: t.duration, Failures: int(n)}, nil
}

// Reset returns the key to Clear after a successful login.
func (t *Tracker) Reset(ctx context.Context, key string) error {
	return t.store.Delete(ctx, failKey(key), untilKey(key))
}

func (t *Tracker) lockState(ctx context.Context, key string) (Status, bool, error) {
	raw, err := t.store.Get(ctx, untilKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("read lock: %w", err)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Status{}, false, t.Reset(ctx, key)
	}
	until := time.Unix(0, nanos)
	now := t.now()
	if !now.Before(until) {
		return Status{}, false, t.Reset(ctx, key)
	}
	return Status{Locked: true, LockedUntil: until, RetryAfter: until.Sub(now)}, true, nil
}
