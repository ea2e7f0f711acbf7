package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diagnosis/cruise-bookings/pkg/apiclient"
)

// fakeAPI hands out numbered tokens and accepts only the latest one, unless
// rejectAll is set.
type fakeAPI struct {
	mu        sync.Mutex
	issued    int
	current   string
	rejectAll bool
	fetches   atomic.Int32
	mutations atomic.Int32
	lastKey   string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		time.Sleep(10 * time.Millisecond)
		f.mu.Lock()
		f.issued++
		f.current = fmt.Sprintf("tok-%d", f.issued)
		tok := f.current
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unexpected token"})
			return
		}
		f.rotate()
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "username": "alice"})
	})
	mux.HandleFunc("/api/bookings", func(w http.ResponseWriter, r *http.Request) {
		f.mutations.Add(1)
		f.mu.Lock()
		ok := !f.rejectAll && r.Header.Get("X-CSRF-Token") == f.current
		f.lastKey = r.Header.Get("Idempotency-Key")
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "Invalid CSRF token", "code": "CSRF_INVALID"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Booking created successfully"})
	})
	mux.HandleFunc("/api/bookings/9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Not authorized to view this booking", "code": "FORBIDDEN"})
	})
	return mux
}

// rotate invalidates the current token the way a login does.
func (f *fakeAPI) rotate() {
	f.mu.Lock()
	f.current = "rotated"
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setup(t *testing.T, opts ...apiclient.Option) (*apiclient.Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c, api
}

func TestTokenCachedAndShared(t *testing.T) {
	c, api := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Token(ctx)
			if err != nil {
				t.Error(err)
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if n := api.fetches.Load(); n != 1 {
		t.Errorf("expected one shared fetch, got %d", n)
	}
	for _, tok := range tokens {
		if tok != "tok-1" {
			t.Errorf("expected tok-1, got %q", tok)
		}
	}

	if _, err := c.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if n := api.fetches.Load(); n != 1 {
		t.Errorf("expected cached token, got %d fetches", n)
	}
}

func TestStaleTokenRefetched(t *testing.T) {
	now := time.Now()
	c, api := setup(t, apiclient.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := c.Token(ctx); err != nil {
		t.Fatal(err)
	}
	now = now.Add(59 * time.Minute)
	if _, err := c.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if n := api.fetches.Load(); n != 1 {
		t.Fatalf("expected fresh token reused, got %d fetches", n)
	}

	now = now.Add(2 * time.Minute)
	tok, err := c.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" || api.fetches.Load() != 2 {
		t.Errorf("expected refetch after an hour, got %q after %d fetches", tok, api.fetches.Load())
	}
}

func TestMutationRetriesOnceAfterRejection(t *testing.T) {
	c, api := setup(t)
	ctx := context.Background()

	if _, err := c.Token(ctx); err != nil {
		t.Fatal(err)
	}
	api.rotate()

	var out map[string]any
	if err := c.Post(ctx, "/api/bookings", map[string]int{"cruiseId": 10}, &out); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if out["message"] != "Booking created successfully" {
		t.Errorf("unexpected body %v", out)
	}
	if api.mutations.Load() != 2 || api.fetches.Load() != 2 {
		t.Errorf("expected 2 attempts and 2 fetches, got %d and %d", api.mutations.Load(), api.fetches.Load())
	}
}

func TestMutationGivesUpAfterSecondRejection(t *testing.T) {
	c, api := setup(t)
	api.rejectAll = true

	err := c.Post(context.Background(), "/api/bookings", map[string]int{"cruiseId": 10}, nil)
	if !errors.Is(err, apiclient.ErrCSRF) {
		t.Fatalf("expected ErrCSRF, got %v", err)
	}
	if n := api.mutations.Load(); n != 2 {
		t.Errorf("expected exactly one replay, got %d attempts", n)
	}
}

func TestLoginDropsCachedToken(t *testing.T) {
	c, api := setup(t)
	ctx := context.Background()

	if _, err := c.Token(ctx); err != nil {
		t.Fatal(err)
	}
	u, err := c.Login(ctx, apiclient.Credentials{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" {
		t.Errorf("unexpected user %+v", u)
	}

	if err := c.PostIdempotent(ctx, "/api/bookings", "pay-1", map[string]int{"cruiseId": 10}, nil); err != nil {
		t.Fatal(err)
	}
	if api.mutations.Load() != 1 {
		t.Errorf("expected a fresh token without a rejected attempt, got %d attempts", api.mutations.Load())
	}
	if api.lastKey != "pay-1" {
		t.Errorf("expected idempotency key forwarded, got %q", api.lastKey)
	}
}

func TestOtherForbiddenNotRetried(t *testing.T) {
	c, api := setup(t)

	err := c.Get(context.Background(), "/api/bookings/9", nil)
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "FORBIDDEN" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if api.fetches.Load() != 0 {
		t.Error("reads must not fetch a token")
	}
}
