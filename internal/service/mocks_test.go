package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/payments"
	"github.com/diagnosis/cruise-bookings/internal/repository"
)

// ---- users ----

type mockUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[int64]*domain.User), nextID: 1}
}

func (m *mockUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return nil, repository.ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, repository.ErrDuplicateEmail
		}
	}
	cp := *u
	cp.ID = m.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.nextID++
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockUserRepo) find(match func(*domain.User) bool) *domain.User {
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

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Username, username) }), nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id int64, email *string, p domain.ProfileFields) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if email != nil {
		u.Email = *email
	}
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&u.FirstName, p.FirstName)
	set(&u.LastName, p.LastName)
	set(&u.Phone, p.Phone)
	set(&u.Address, p.Address)
	set(&u.City, p.City)
	set(&u.State, p.State)
	set(&u.ZipCode, p.ZipCode)
	set(&u.Country, p.Country)
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (m *mockUserRepo) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, userID int64, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.ResetTokenHash = &tokenHash
		u.ResetTokenExpiry = &expiry
	}
	return nil
}

func (m *mockUserRepo) ConsumeResetToken(_ context.Context, tokenHash, newHash string, now time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash && u.ResetTokenExpiry.After(now) {
			u.PasswordHash = newHash
			u.ResetTokenHash = nil
			u.ResetTokenExpiry = nil
			return u.ID, true, nil
		}
	}
	return 0, false, nil
}

// ---- bookings ----

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[int64]*domain.Booking
	nextID   int64
	// dupRefs makes Create report a collision for these references.
	dupRefs map[string]bool
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[int64]*domain.Booking), nextID: 1, dupRefs: map[string]bool{}}
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	cp := *b
	cp.StatusHistory = append([]domain.StatusEntry{}, b.StatusHistory...)
	cp.GuestDetails = append([]domain.GuestDetail{}, b.GuestDetails...)
	return &cp
}

func (m *mockBookingRepo) Create(_ context.Context, b *domain.Booking) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupRefs[b.BookingReference] {
		return nil, repository.ErrDuplicateReference
	}
	cp := cloneBooking(b)
	cp.ID = m.nextID
	m.nextID++
	cp.Status = domain.BookingPending
	cp.Version = 1
	cp.CreatedAt = b.BookingDate
	cp.UpdatedAt = b.BookingDate
	cp.StatusHistory = []domain.StatusEntry{{Status: domain.BookingPending, Timestamp: b.BookingDate}}
	m.bookings[cp.ID] = cp
	return cloneBooking(cp), nil
}

// put stores b as is, for seeding arbitrary states.
func (m *mockBookingRepo) put(b *domain.Booking) *domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		b.ID = m.nextID
		m.nextID++
	}
	if b.Version == 0 {
		b.Version = 1
	}
	m.bookings[b.ID] = cloneBooking(b)
	return cloneBooking(b)
}

func (m *mockBookingRepo) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return cloneBooking(b), nil
}

func (m *mockBookingRepo) filter(keep func(*domain.Booking) bool) []domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Booking{}
	for id := int64(1); id < m.nextID; id++ {
		if b, ok := m.bookings[id]; ok && keep(b) {
			out = append(out, *cloneBooking(b))
		}
	}
	return out
}

func (m *mockBookingRepo) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	return m.filter(func(b *domain.Booking) bool { return b.UserID == userID }), nil
}

func (m *mockBookingRepo) ListUpcoming(_ context.Context, userID int64, today time.Time) ([]domain.Booking, error) {
	return m.filter(func(b *domain.Booking) bool {
		return b.UserID == userID && domain.IsUpcoming(b, today)
	}), nil
}

func (m *mockBookingRepo) ListPast(_ context.Context, userID int64, today time.Time) ([]domain.Booking, error) {
	return m.filter(func(b *domain.Booking) bool {
		return b.UserID == userID && domain.IsPast(b, today)
	}), nil
}

func (m *mockBookingRepo) ApplyTransition(_ context.Context, t domain.Transition) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(t)
}

func (m *mockBookingRepo) applyLocked(t domain.Transition) (*domain.Booking, error) {
	b, ok := m.bookings[t.BookingID]
	if !ok || b.Version != t.ExpectedVersion {
		return nil, repository.ErrStaleVersion
	}
	b.Status = t.To
	if t.CancellationReason != nil {
		b.CancellationReason = t.CancellationReason
	}
	if t.CancellationNotes != nil {
		b.CancellationNotes = t.CancellationNotes
	}
	at := t.At
	if t.To == domain.BookingCancelled {
		b.CancellationDate = &at
	}
	if t.RefundAmount != nil {
		b.RefundAmount = t.RefundAmount
	}
	if t.To == domain.BookingRefunded {
		b.RefundDate = &at
	}
	b.Version++
	b.UpdatedAt = at
	b.StatusHistory = append(b.StatusHistory, domain.StatusEntry{Status: t.To, Timestamp: at})
	return cloneBooking(b), nil
}

func (m *mockBookingRepo) CheckIn(_ context.Context, id int64, expectedVersion int, at time.Time) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Version != expectedVersion {
		return nil, repository.ErrStaleVersion
	}
	b.CheckedIn = true
	b.CheckInDate = &at
	b.Version++
	b.UpdatedAt = at
	return cloneBooking(b), nil
}

// ---- payments ----

type mockPaymentRepo struct {
	bookings *mockBookingRepo
	mu       sync.Mutex
	payments []domain.Payment
}

func (m *mockPaymentRepo) Capture(_ context.Context, p *domain.Payment, confirm *domain.Transition) (*domain.Payment, *domain.Booking, error) {
	if p.PaymentIntentID != nil {
		m.mu.Lock()
		for _, existing := range m.payments {
			if existing.PaymentIntentID != nil && *existing.PaymentIntentID == *p.PaymentIntentID {
				m.mu.Unlock()
				return nil, nil, repository.ErrDuplicateIntent
			}
		}
		m.mu.Unlock()
	}
	var b *domain.Booking
	if confirm != nil {
		m.bookings.mu.Lock()
		var err error
		b, err = m.bookings.applyLocked(*confirm)
		m.bookings.mu.Unlock()
		if err != nil {
			return nil, nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.ID = int64(len(m.payments) + 1)
	cp.CreatedAt = time.Now()
	m.payments = append(m.payments, cp)
	return &cp, b, nil
}

func (m *mockPaymentRepo) ListByBooking(_ context.Context, bookingID int64) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) Refund(_ context.Context, t domain.Transition, allocs []domain.RefundAllocation) (*domain.Booking, error) {
	m.bookings.mu.Lock()
	b, err := m.bookings.applyLocked(t)
	m.bookings.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range allocs {
		for i := range m.payments {
			p := &m.payments[i]
			if p.ID != a.PaymentID {
				continue
			}
			total := a.Amount
			if p.RefundAmount != nil {
				total += *p.RefundAmount
			}
			p.RefundAmount = &total
			if total >= p.Amount {
				p.Status = domain.PaymentRefunded
			}
		}
	}
	return b, nil
}

// ---- catalog ----

type mockCatalogRepo struct {
	destinations map[int64]*domain.Destination
	amenities    []domain.Amenity
	cruises      map[int64]*domain.Cruise
	testimonials []domain.Testimonial
	lastFilter   repository.CruiseFilter
}

func newMockCatalogRepo() *mockCatalogRepo {
	return &mockCatalogRepo{
		destinations: map[int64]*domain.Destination{
			1: {ID: 1, Name: "Caribbean"},
		},
		amenities: []domain.Amenity{
			{ID: 1, Name: "Gourmet Dining"},
			{ID: 2, Name: "Rejuvenating Spa"},
		},
		cruises: map[int64]*domain.Cruise{
			10: {ID: 10, Title: "Island Hopper", DestinationID: 1, Duration: 7, PricePerPerson: 120000},
			11: {ID: 11, Title: "Long Haul", DestinationID: 1, Duration: 14, PricePerPerson: 300000},
		},
	}
}

func (m *mockCatalogRepo) ListDestinations(context.Context) ([]domain.Destination, error) {
	out := []domain.Destination{}
	for _, d := range m.destinations {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockCatalogRepo) ListAmenities(context.Context) ([]domain.Amenity, error) {
	return append([]domain.Amenity{}, m.amenities...), nil
}

func (m *mockCatalogRepo) GetDestination(_ context.Context, id int64) (*domain.Destination, error) {
	if d, ok := m.destinations[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *mockCatalogRepo) ListCruises(context.Context) ([]domain.Cruise, error) {
	return m.SearchCruises(context.Background(), repository.CruiseFilter{})
}

func (m *mockCatalogRepo) GetCruise(_ context.Context, id int64) (*domain.Cruise, error) {
	if c, ok := m.cruises[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *mockCatalogRepo) ListCruisesByDestination(ctx context.Context, destinationID int64) ([]domain.Cruise, error) {
	return m.SearchCruises(ctx, repository.CruiseFilter{DestinationID: destinationID})
}

func (m *mockCatalogRepo) SearchCruises(_ context.Context, f repository.CruiseFilter) ([]domain.Cruise, error) {
	m.lastFilter = f
	out := []domain.Cruise{}
	for _, id := range []int64{10, 11} {
		c, ok := m.cruises[id]
		if !ok {
			continue
		}
		if f.DestinationID > 0 && c.DestinationID != f.DestinationID {
			continue
		}
		if f.MinDuration > 0 && c.Duration < f.MinDuration {
			continue
		}
		if f.MaxDuration > 0 && c.Duration > f.MaxDuration {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCatalogRepo) ListVerifiedTestimonials(context.Context) ([]domain.Testimonial, error) {
	out := []domain.Testimonial{}
	for _, t := range m.testimonials {
		if t.IsVerified {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) ListTestimonialsByCruise(_ context.Context, cruiseID int64) ([]domain.Testimonial, error) {
	out := []domain.Testimonial{}
	for _, t := range m.testimonials {
		if t.IsVerified && t.CruiseID != nil && *t.CruiseID == cruiseID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) CreateTestimonial(_ context.Context, t *domain.Testimonial) (*domain.Testimonial, error) {
	cp := *t
	cp.ID = int64(len(m.testimonials) + 1)
	cp.IsVerified = false
	m.testimonials = append(m.testimonials, cp)
	return &cp, nil
}

func (m *mockCatalogRepo) VerifyTestimonial(_ context.Context, id int64) (*domain.Testimonial, error) {
	for i := range m.testimonials {
		if m.testimonials[i].ID == id {
			m.testimonials[i].IsVerified = true
			cp := m.testimonials[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// ---- enquiries ----

type mockEnquiryRepo struct {
	mu        sync.Mutex
	enquiries map[int64]*domain.Enquiry
	responses []domain.EnquiryResponse
	nextID    int64
}

func newMockEnquiryRepo() *mockEnquiryRepo {
	return &mockEnquiryRepo{enquiries: make(map[int64]*domain.Enquiry), nextID: 1}
}

func (m *mockEnquiryRepo) Create(_ context.Context, e *domain.Enquiry) (*domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.nextID
	m.nextID++
	cp.CreatedAt = time.Now()
	m.enquiries[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockEnquiryRepo) GetByID(_ context.Context, id int64) (*domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enquiries[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *mockEnquiryRepo) list(keep func(*domain.Enquiry) bool) []domain.Enquiry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Enquiry{}
	for id := m.nextID - 1; id >= 1; id-- {
		if e, ok := m.enquiries[id]; ok && keep(e) {
			out = append(out, *e)
		}
	}
	return out
}

func (m *mockEnquiryRepo) List(context.Context) ([]domain.Enquiry, error) {
	return m.list(func(*domain.Enquiry) bool { return true }), nil
}

func (m *mockEnquiryRepo) ListByUser(_ context.Context, userID int64) ([]domain.Enquiry, error) {
	return m.list(func(e *domain.Enquiry) bool { return e.UserID != nil && *e.UserID == userID }), nil
}

func (m *mockEnquiryRepo) UpdateStatus(_ context.Context, id int64, from, to domain.EnquiryStatus) (*domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enquiries[id]
	if !ok || e.Status != from {
		return nil, repository.ErrStaleStatus
	}
	e.Status = to
	cp := *e
	return &cp, nil
}

func (m *mockEnquiryRepo) Assign(_ context.Context, id, assigneeID int64) (*domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enquiries[id]
	if !ok {
		return nil, nil
	}
	e.AssignedToUserID = &assigneeID
	cp := *e
	return &cp, nil
}

func (m *mockEnquiryRepo) CreateResponse(_ context.Context, r *domain.EnquiryResponse) (*domain.EnquiryResponse, *domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.enquiries[r.EnquiryID]
	cp := *r
	cp.ID = int64(len(m.responses) + 1)
	cp.RespondedAt = time.Now()
	m.responses = append(m.responses, cp)
	e.Status = domain.EnquiryResponded
	ecp := *e
	return &cp, &ecp, nil
}

func (m *mockEnquiryRepo) ListResponses(_ context.Context, enquiryID int64) ([]domain.EnquiryResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.EnquiryResponse{}
	for _, r := range m.responses {
		if r.EnquiryID == enquiryID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- collaborators ----

type mockGateway struct {
	decline  bool
	refunds  []payments.Refund
	captures int
}

func (g *mockGateway) Capture(_ context.Context, c payments.Charge) (*payments.Capture, error) {
	if g.decline {
		return nil, payments.ErrDeclined
	}
	g.captures++
	intent := c.PaymentIntentID
	if intent == "" {
		intent = fmt.Sprintf("pi_test_%d", g.captures)
	}
	return &payments.Capture{TransactionID: "txn_test", PaymentIntentID: intent, Amount: c.Amount, Currency: c.Currency}, nil
}

func (g *mockGateway) Refund(_ context.Context, intent string, amount int64) (*payments.Refund, error) {
	r := payments.Refund{ID: "re_test", PaymentIntentID: intent, Amount: amount}
	g.refunds = append(g.refunds, r)
	return &r, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) has(subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

type mockMailer struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (m *mockMailer) SendPasswordReset(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+" "+link)
	return m.fail
}
