package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/repository"
	"github.com/diagnosis/cruise-bookings/pkg/events"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type EnquiryService interface {
	Create(ctx context.Context, userID *int64, req *domain.CreateEnquiryRequest) (*domain.Enquiry, error)
	ListMine(ctx context.Context, userID int64) ([]domain.Enquiry, error)
	ListAll(ctx context.Context) ([]domain.Enquiry, error)
	Get(ctx context.Context, id int64) (*domain.Enquiry, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*domain.Enquiry, error)
	Assign(ctx context.Context, id int64, req *domain.AssignEnquiryRequest) (*domain.Enquiry, error)
	CreateResponse(ctx context.Context, responderID, id int64, req *domain.CreateEnquiryResponseRequest) (*domain.EnquiryResponse, *domain.Enquiry, error)
	ListResponses(ctx context.Context, id int64) ([]domain.EnquiryResponse, error)
}

var errEnquiryChanged = domain.Conflict("Enquiry was modified concurrently, reload and try again")

type enquiryService struct {
	enquiries repository.EnquiryRepository
	users     repository.UserRepository
	events    events.Publisher
}

func NewEnquiryService(enquiries repository.EnquiryRepository, users repository.UserRepository, publisher events.Publisher) EnquiryService {
	return &enquiryService{enquiries: enquiries, users: users, events: publisher}
}

func (s *enquiryService) Create(ctx context.Context, userID *int64, req *domain.CreateEnquiryRequest) (*domain.Enquiry, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, err := s.enquiries.Create(ctx, &domain.Enquiry{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
		Status:  domain.EnquirySubmitted,
		UserID:  userID,
	})
	if err != nil {
		return nil, fmt.Errorf("create enquiry: %w", err)
	}

	logger.InfoContext(ctx, "Enquiry submitted", "enquiry_id", e.ID)
	publish(ctx, s.events, events.EnquiryCreated, events.EnquiryCreatedEvent{
		EnquiryID: e.ID,
		Email:     e.Email,
		Subject:   e.Subject,
	})
	return e, nil
}

func (s *enquiryService) ListMine(ctx context.Context, userID int64) ([]domain.Enquiry, error) {
	out, err := s.enquiries.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enquiries: %w", err)
	}
	return out, nil
}

func (s *enquiryService) ListAll(ctx context.Context) ([]domain.Enquiry, error) {
	out, err := s.enquiries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enquiries: %w", err)
	}
	return out, nil
}

func (s *enquiryService) load(ctx context.Context, id int64) (*domain.Enquiry, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidEnquiryID
	}
	e, err := s.enquiries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load enquiry: %w", err)
	}
	if e == nil {
		return nil, domain.ErrEnquiryNotFound
	}
	return e, nil
}

// Get is a staff read; any session counts as staff.
func (s *enquiryService) Get(ctx context.Context, id int64) (*domain.Enquiry, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Responses, err = s.enquiries.ListResponses(ctx, e.ID); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return e, nil
}

func (s *enquiryService) UpdateStatus(ctx context.Context, id int64, status string) (*domain.Enquiry, error) {
	to, ok := domain.ParseEnquiryStatus(status)
	if !ok {
		return nil, domain.FieldError("status", "Invalid status")
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Status.CanTransitionTo(to) {
		return nil, domain.EnquiryTransitionError(e.Status, to)
	}

	updated, err := s.enquiries.UpdateStatus(ctx, e.ID, e.Status, to)
	if errors.Is(err, repository.ErrStaleStatus) {
		return nil, errEnquiryChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update enquiry status: %w", err)
	}
	logger.InfoContext(ctx, "Enquiry status changed", "enquiry_id", e.ID, "from", string(e.Status), "to", string(to))
	return updated, nil
}

func (s *enquiryService) Assign(ctx context.Context, id int64, req *domain.AssignEnquiryRequest) (*domain.Enquiry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, req.AssignedToUserID)
	if err != nil {
		return nil, fmt.Errorf("load assignee: %w", err)
	}
	if assignee == nil {
		return nil, domain.ErrUserNotFound
	}

	updated, err := s.enquiries.Assign(ctx, e.ID, assignee.ID)
	if err != nil {
		return nil, fmt.Errorf("assign enquiry: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrEnquiryNotFound
	}
	return updated, nil
}

// CreateResponse always leaves the enquiry responded, whatever its prior status.
func (s *enquiryService) CreateResponse(ctx context.Context, responderID, id int64, req *domain.CreateEnquiryResponseRequest) (*domain.EnquiryResponse, *domain.Enquiry, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	resp, updated, err := s.enquiries.CreateResponse(ctx, &domain.EnquiryResponse{
		EnquiryID:         e.ID,
		ResponseText:      req.ResponseText,
		RespondedByUserID: responderID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create enquiry response: %w", err)
	}

	logger.InfoContext(ctx, "Enquiry responded", "enquiry_id", e.ID, "response_id", resp.ID)
	publish(ctx, s.events, events.EnquiryResponded, events.EnquiryRespondedEvent{
		EnquiryID:   e.ID,
		ResponseID:  resp.ID,
		RespondedBy: responderID,
	})
	return resp, updated, nil
}

func (s *enquiryService) ListResponses(ctx context.Context, id int64) ([]domain.EnquiryResponse, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.enquiries.ListResponses(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return out, nil
}
