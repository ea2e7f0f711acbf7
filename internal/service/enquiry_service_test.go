package service_test

import (
	"context"
	"testing"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/service"
	"github.com/diagnosis/cruise-bookings/pkg/events"
)

type enquiryFixture struct {
	svc       service.EnquiryService
	enquiries *mockEnquiryRepo
	users     *mockUserRepo
	events    *recordingPublisher
}

func newEnquiryFixture(t *testing.T) *enquiryFixture {
	t.Helper()
	f := &enquiryFixture{
		enquiries: newMockEnquiryRepo(),
		users:     newMockUserRepo(),
		events:    &recordingPublisher{},
	}
	ctx := context.Background()
	f.users.Create(ctx, &domain.User{Username: "guest", Email: "guest@example.com"})
	f.users.Create(ctx, &domain.User{Username: "agent", Email: "agent@example.com"})
	f.users.Create(ctx, &domain.User{Username: "other", Email: "other@example.com"})
	f.svc = service.NewEnquiryService(f.enquiries, f.users, f.events)
	return f
}

func validEnquiry() *domain.CreateEnquiryRequest {
	return &domain.CreateEnquiryRequest{
		Name:    "Grace Hopper",
		Email:   " Grace@Example.com ",
		Subject: "Accessible cabins",
		Message: "Do you have step-free cabins on the Caribbean sailing?",
	}
}

func TestCreateEnquiry(t *testing.T) {
	f := newEnquiryFixture(t)
	guest := int64(1)

	e, err := f.svc.Create(context.Background(), &guest, validEnquiry())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Status != domain.EnquirySubmitted || e.Email != "grace@example.com" {
		t.Errorf("unexpected enquiry %+v", e)
	}
	if e.UserID == nil || *e.UserID != guest {
		t.Errorf("expected submitter recorded, got %v", e.UserID)
	}
	if !f.events.has(events.EnquiryCreated) {
		t.Error("expected enquiry.created event")
	}

	short := validEnquiry()
	short.Message = "hi"
	_, err = f.svc.Create(context.Background(), nil, short)
	if asDomainError(t, err).Fields["field"] != "message" {
		t.Errorf("expected message error, got %v", err)
	}
}

func TestEnquiryTransitions(t *testing.T) {
	f := newEnquiryFixture(t)
	ctx := context.Background()
	e, _ := f.svc.Create(ctx, nil, validEnquiry())

	e, err := f.svc.UpdateStatus(ctx, e.ID, "in_review")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if e.Status != domain.EnquiryInReview {
		t.Errorf("expected in_review, got %s", e.Status)
	}

	_, err = f.svc.UpdateStatus(ctx, e.ID, "submitted")
	de := asDomainError(t, err)
	if de.Kind != domain.KindConflict || de.Fields["currentStatus"] != "in_review" {
		t.Errorf("expected conflict from in_review, got %v %v", de.Kind, de.Fields)
	}

	_, err = f.svc.UpdateStatus(ctx, e.ID, "archived")
	if asDomainError(t, err).Fields["field"] != "status" {
		t.Errorf("expected status field error, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, e.ID, "closed"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, e.ID, "in_review"); asDomainError(t, err).Kind != domain.KindConflict {
		t.Errorf("expected closed to be terminal, got %v", err)
	}
}

func TestResponseForcesResponded(t *testing.T) {
	for _, start := range []domain.EnquiryStatus{domain.EnquirySubmitted, domain.EnquiryInReview, domain.EnquiryClosed} {
		t.Run(string(start), func(t *testing.T) {
			f := newEnquiryFixture(t)
			ctx := context.Background()
			e, _ := f.svc.Create(ctx, nil, validEnquiry())
			f.enquiries.enquiries[e.ID].Status = start

			resp, updated, err := f.svc.CreateResponse(ctx, 2, e.ID, &domain.CreateEnquiryResponseRequest{ResponseText: " Yes, deck 7. "})
			if err != nil {
				t.Fatalf("CreateResponse: %v", err)
			}
			if updated.Status != domain.EnquiryResponded {
				t.Errorf("expected responded, got %s", updated.Status)
			}
			if resp.ResponseText != "Yes, deck 7." || resp.RespondedByUserID != 2 {
				t.Errorf("unexpected response %+v", resp)
			}
			if !f.events.has(events.EnquiryResponded) {
				t.Error("expected enquiry.responded event")
			}
		})
	}
}

func TestEnquiryStaffAccess(t *testing.T) {
	f := newEnquiryFixture(t)
	ctx := context.Background()
	guest := int64(1)

	owned, _ := f.svc.Create(ctx, &guest, validEnquiry())
	anonymous, _ := f.svc.Create(ctx, nil, validEnquiry())

	if _, err := f.svc.Get(ctx, owned.ID); err != nil {
		t.Errorf("expected owned enquiry readable by staff, got %v", err)
	}
	if _, err := f.svc.Get(ctx, anonymous.ID); err != nil {
		t.Errorf("expected anonymous enquiry readable by staff, got %v", err)
	}

	if _, err := f.svc.Assign(ctx, owned.ID, &domain.AssignEnquiryRequest{AssignedToUserID: 2}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, _, err := f.svc.CreateResponse(ctx, 2, owned.ID, &domain.CreateEnquiryResponseRequest{ResponseText: "On it."}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Get(ctx, owned.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Responses) != 1 {
		t.Errorf("expected responses attached, got %v", got.Responses)
	}
	responses, err := f.svc.ListResponses(ctx, owned.ID)
	if err != nil || len(responses) != 1 {
		t.Errorf("expected responses listed for staff, got %v %v", responses, err)
	}
	if _, err := f.svc.ListResponses(ctx, 404); err != domain.ErrEnquiryNotFound {
		t.Errorf("expected not found, got %v", err)
	}

	mine, _ := f.svc.ListMine(ctx, 1)
	if len(mine) != 1 || mine[0].ID != owned.ID {
		t.Errorf("expected only owned enquiry listed, got %v", mine)
	}
	all, _ := f.svc.ListAll(ctx)
	if len(all) != 2 || all[0].ID != anonymous.ID {
		t.Errorf("expected newest first, got %v", all)
	}
}

func TestAssignUnknownUser(t *testing.T) {
	f := newEnquiryFixture(t)
	e, _ := f.svc.Create(context.Background(), nil, validEnquiry())
	if _, err := f.svc.Assign(context.Background(), e.ID, &domain.AssignEnquiryRequest{AssignedToUserID: 99}); err != domain.ErrUserNotFound {
		t.Errorf("expected user not found, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), 404); err != domain.ErrEnquiryNotFound {
		t.Errorf("expected enquiry not found, got %v", err)
	}
}
