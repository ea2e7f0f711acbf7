package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/credentials"
	"github.com/diagnosis/cruise-bookings/internal/csrf"
	"github.com/diagnosis/cruise-bookings/internal/domain"
	apihttp "github.com/diagnosis/cruise-bookings/internal/http"
	"github.com/diagnosis/cruise-bookings/internal/http/handlers"
	"github.com/diagnosis/cruise-bookings/internal/http/middleware"
	"github.com/diagnosis/cruise-bookings/internal/lockout"
	"github.com/diagnosis/cruise-bookings/internal/mailer"
	"github.com/diagnosis/cruise-bookings/internal/service"
	"github.com/diagnosis/cruise-bookings/internal/session"
	"github.com/diagnosis/cruise-bookings/pkg/kv"
)

// ---------- Mocks ----------

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*domain.User
	next  int64
}

func (m *memUsers) find(match func(*domain.User) bool) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	cp := *u
	cp.ID = m.next
	cp.CreatedAt = time.Now()
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Username, name) }), nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id int64, email *string, p domain.ProfileFields) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	if email != nil {
		u.Email = *email
	}
	if p.FirstName != nil {
		u.FirstName = p.FirstName
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].PasswordHash = hash
	return nil
}

func (m *memUsers) TouchLastLogin(context.Context, int64, time.Time) error { return nil }

func (m *memUsers) SetResetToken(_ context.Context, id int64, hash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].ResetTokenHash = &hash
	m.users[id].ResetTokenExpiry = &expiry
	return nil
}

func (m *memUsers) ConsumeResetToken(_ context.Context, hash, newHash string, now time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash && u.ResetTokenExpiry.After(now) {
			u.PasswordHash = newHash
			u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
			return u.ID, true, nil
		}
	}
	return 0, false, nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]session.Record
}

func (m *memSessions) Create(_ context.Context, idHash string, userID int64, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[idHash] = session.Record{IDHash: idHash, UserID: userID, ExpiresAt: exp}
	return nil
}

func (m *memSessions) Get(_ context.Context, idHash string) (*session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[idHash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memSessions) Extend(_ context.Context, idHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.rows[idHash]
	rec.ExpiresAt = exp
	m.rows[idHash] = rec
	return nil
}

func (m *memSessions) Delete(_ context.Context, idHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, idHash)
	return nil
}

func (m *memSessions) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

// fakeCatalog serves a fixed amenity list.
type fakeCatalog struct {
	service.CatalogService
}

func (fakeCatalog) ListAmenities(context.Context) ([]domain.Amenity, error) {
	return []domain.Amenity{{ID: 1, Name: "Gourmet Dining", ImageURL: "/img/dining.jpg"}}, nil
}

// fakeBookings records the caller and answers with canned bookings.
type fakeBookings struct {
	service.BookingService
	lastUser int64
}

func (f *fakeBookings) Create(_ context.Context, userID int64, req *domain.CreateBookingRequest) (*domain.Booking, error) {
	f.lastUser = userID
	return &domain.Booking{ID: 1, UserID: userID, CruiseID: req.CruiseID, BookingReference: "BK-TEST", Status: domain.BookingPending}, nil
}

func (f *fakeBookings) Get(_ context.Context, userID, id int64) (*domain.Booking, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidBookingID
	}
	if userID != 1 {
		return nil, domain.ErrBookingViewDenied
	}
	return &domain.Booking{ID: id, UserID: userID}, nil
}

// ---------- Harness ----------

type harness struct {
	srv    *httptest.Server
	client *http.Client
	store  kv.Store
}

type harnessOpts struct {
	globalLimit int
	echo        bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	if o.globalLimit == 0 {
		o.globalLimit = 1000
	}
	store := kv.NewMemoryStore()
	users := &memUsers{users: map[int64]*domain.User{}}
	sessions := session.NewManager(&memSessions{rows: map[string]session.Record{}}, users, session.Config{TTL: time.Hour})
	csrfManager := csrf.NewManager(store, csrf.Config{TTL: time.Hour})

	accounts := service.NewAccountService(
		users,
		credentials.NewHasher(credentials.ParamsFrom(8*1024, 1, 1)),
		credentials.NewResetTokens(users, time.Hour),
		lockout.NewTracker(store, 5, 12*time.Hour),
		mailer.NewDevMailer(),
		service.AccountConfig{BaseURL: "http://localhost:5173"},
	)
	h := handlers.New(
		accounts,
		&fakeBookings{},
		service.NewEnquiryService(nil, nil, nil),
		fakeCatalog{},
		sessions,
		csrfManager,
		handlers.Options{EchoResetToken: o.echo},
	)
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Handlers:       h,
		Sessions:       sessions,
		CSRF:           csrfManager,
		Store:          store,
		AllowedOrigins: []string{"http://localhost:5173"},
		GlobalLimit:    middleware.RateLimitConfig{Requests: o.globalLimit, Window: 15 * time.Minute},
		ResetLimit:     middleware.RateLimitConfig{Requests: 3, Window: time.Hour},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return &harness{srv: srv, client: &http.Client{Jar: jar}, store: store}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(csrf.HeaderName, token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (h *harness) csrfToken(t *testing.T) string {
	t.Helper()
	resp, body := h.do(t, http.MethodGet, "/api/csrf-token", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csrf-token: %d", resp.StatusCode)
	}
	tok, _ := body["csrfToken"].(string)
	if tok == "" {
		t.Fatal("empty csrf token")
	}
	return tok
}

var alice = map[string]any{
	"username":        "alice",
	"email":           "alice@example.com",
	"password":        "correct-horse",
	"confirmPassword": "correct-horse",
}

// ---------- Tests ----------

func TestSessionAndCSRFFlow(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	resp, _ := h.do(t, http.MethodGet, "/api/auth/user", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", resp.StatusCode)
	}

	stale := h.csrfToken(t)
	resp, body := h.do(t, http.MethodPost, "/api/auth/register", "", alice)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %v", resp.StatusCode, body)
	}
	if body["username"] != "alice" {
		t.Errorf("expected public projection, got %v", body)
	}
	if _, leaked := body["passwordHash"]; leaked {
		t.Error("password hash leaked")
	}

	resp, body = h.do(t, http.MethodGet, "/api/auth/user", "", nil)
	if resp.StatusCode != http.StatusOK || body["email"] != "alice@example.com" {
		t.Fatalf("expected session user, got %d %v", resp.StatusCode, body)
	}

	booking := map[string]any{
		"cruiseId":       10,
		"departureDate":  time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"numberOfGuests": 1,
		"cabinType":      "inside",
		"guestDetails":   []map[string]string{{"firstName": "Alice", "lastName": "Smith"}},
	}

	resp, body = h.do(t, http.MethodPost, "/api/bookings", "", booking)
	if resp.StatusCode != http.StatusForbidden || body["code"] != "CSRF_INVALID" {
		t.Fatalf("expected CSRF rejection without token, got %d %v", resp.StatusCode, body)
	}

	resp, _ = h.do(t, http.MethodPost, "/api/bookings", stale, booking)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected token from before login to be rotated out, got %d", resp.StatusCode)
	}

	tok := h.csrfToken(t)
	resp, body = h.do(t, http.MethodPost, "/api/bookings", tok, booking)
	if resp.StatusCode != http.StatusCreated || body["message"] != "Booking created successfully" {
		t.Fatalf("create booking: %d %v", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	if resp.StatusCode != http.StatusOK || body["message"] != "Logged out successfully" {
		t.Fatalf("logout: %d %v", resp.StatusCode, body)
	}
	resp, _ = h.do(t, http.MethodGet, "/api/auth/user", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp, _ = h.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected repeat logout to succeed, got %d", resp.StatusCode)
	}
}

func TestBookingsRequireSession(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, body := h.do(t, http.MethodGet, "/api/bookings/1", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Not authenticated" {
		t.Errorf("expected 401, got %d %v", resp.StatusCode, body)
	}
}

func TestAmenitiesArePublic(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/amenities", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out []domain.Amenity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || len(out) != 1 || out[0].ImageURL != "/img/dining.jpg" {
		t.Errorf("expected amenity list, got %d %+v", resp.StatusCode, out)
	}
}

func TestBookingErrorsMapped(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.do(t, http.MethodPost, "/api/auth/register", "", alice)

	resp, body := h.do(t, http.MethodGet, "/api/bookings/abc", "", nil)
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Invalid booking ID" {
		t.Errorf("expected invalid id, got %d %v", resp.StatusCode, body)
	}
	resp, _ = h.do(t, http.MethodGet, "/api/bookings/7", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected owner read, got %d", resp.StatusCode)
	}
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.do(t, http.MethodPost, "/api/auth/register", "", alice)

	bad := map[string]string{"username": "alice", "password": "wrong-password"}
	for i := 0; i < 4; i++ {
		resp, body := h.do(t, http.MethodPost, "/api/auth/login", "", bad)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
		if body["message"] != "Invalid username or password" {
			t.Errorf("unexpected message %v", body["message"])
		}
	}

	resp, body := h.do(t, http.MethodPost, "/api/auth/login", "", bad)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "43200" {
		t.Errorf("expected Retry-After 43200, got %q", got)
	}
	if body["locked"] != true || body["lockExpiresIn"] != float64(12) || body["code"] != domain.CodeAccountLocked {
		t.Errorf("unexpected lock body %v", body)
	}
}

func TestLoginMissingUsername(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp, body := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"password": "x"})
	if resp.StatusCode != http.StatusBadRequest || body["field"] != "username" || body["message"] != "Username is required" {
		t.Errorf("expected username required, got %d %v", resp.StatusCode, body)
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	payload := map[string]any{}
	for k, v := range alice {
		payload[k] = v
	}
	payload["isAdmin"] = true

	resp, body := h.do(t, http.MethodPost, "/api/auth/register", "", payload)
	if resp.StatusCode != http.StatusBadRequest || body["field"] != "isAdmin" {
		t.Errorf("expected unknown field rejected, got %d %v", resp.StatusCode, body)
	}
}

func TestProfileRejectsPassword(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.do(t, http.MethodPost, "/api/auth/register", "", alice)
	tok := h.csrfToken(t)

	resp, body := h.do(t, http.MethodPatch, "/api/profile", tok, map[string]string{"password": "sneaky-change"})
	if resp.StatusCode != http.StatusBadRequest || body["field"] != "password" {
		t.Errorf("expected password field rejected, got %d %v", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPatch, "/api/profile", tok, map[string]string{"firstName": "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: %d %v", resp.StatusCode, body)
	}
}

func TestPasswordResetOverHTTP(t *testing.T) {
	h := newHarness(t, harnessOpts{echo: true})
	h.do(t, http.MethodPost, "/api/auth/register", "", alice)
	h.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	tok := h.csrfToken(t)

	resp, unknown := h.do(t, http.MethodPost, "/api/auth/reset-request", tok, map[string]string{"email": "nobody@example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset-request: %d", resp.StatusCode)
	}
	if _, echoed := unknown["resetToken"]; echoed {
		t.Error("unknown email must not get a token")
	}

	_, known := h.do(t, http.MethodPost, "/api/auth/reset-request", tok, map[string]string{"email": "alice@example.com"})
	if known["message"] != unknown["message"] {
		t.Errorf("expected identical messages, got %q and %q", known["message"], unknown["message"])
	}
	reset, _ := known["resetToken"].(string)
	if reset == "" {
		t.Fatal("expected echoed token")
	}

	resp, body := h.do(t, http.MethodPost, "/api/auth/reset-password", tok, map[string]string{"token": reset, "password": "brand-new-pass"})
	if resp.StatusCode != http.StatusOK || body["message"] != "Password reset successfully" {
		t.Fatalf("reset-password: %d %v", resp.StatusCode, body)
	}

	// Fourth reset call inside the hour is throttled.
	resp, _ = h.do(t, http.MethodPost, "/api/auth/reset-request", tok, map[string]string{"email": "alice@example.com"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected reset limiter, got %d", resp.StatusCode)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	h := newHarness(t, harnessOpts{globalLimit: 2})
	for i := 0; i < 2; i++ {
		if resp, _ := h.do(t, http.MethodGet, "/api/csrf-token", "", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, resp.StatusCode)
		}
	}
	resp, body := h.do(t, http.MethodGet, "/api/csrf-token", "", nil)
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected throttling with Retry-After, got %d", resp.StatusCode)
	}
	if body["message"] != "Too many requests from this IP, please try again later" {
		t.Errorf("unexpected message %v", body["message"])
	}

	if resp, _ := h.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected health check outside the limiter, got %d", resp.StatusCode)
	}
}

func TestEnquiryValidationIsPublic(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tok := h.csrfToken(t)
	resp, body := h.do(t, http.MethodPost, "/api/enquiries", tok, map[string]string{"name": "Grace"})
	if resp.StatusCode != http.StatusBadRequest || body["field"] != "email" {
		t.Errorf("expected validation error without a session, got %d %v", resp.StatusCode, body)
	}
}
