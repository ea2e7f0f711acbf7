package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/repository"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

type CatalogService interface {
	ListDestinations(ctx context.Context) ([]domain.Destination, error)
	GetDestination(ctx context.Context, id int64) (*domain.Destination, error)
	ListAmenities(ctx context.Context) ([]domain.Amenity, error)
	ListCruises(ctx context.Context) ([]domain.Cruise, error)
	GetCruise(ctx context.Context, id int64) (*domain.Cruise, error)
	ListCruisesByDestination(ctx context.Context, destinationID int64) ([]domain.Cruise, error)
	SearchCruises(ctx context.Context, req *domain.CruiseSearch) ([]domain.Cruise, error)

	ListTestimonials(ctx context.Context) ([]domain.Testimonial, error)
	ListCruiseTestimonials(ctx context.Context, cruiseID int64) ([]domain.Testimonial, error)
	CreateTestimonial(ctx context.Context, userID *int64, req *domain.CreateTestimonialRequest) (*domain.Testimonial, error)
	VerifyTestimonial(ctx context.Context, id int64) (*domain.Testimonial, error)
}

type catalogService struct {
	catalog repository.CatalogRepository
}

func NewCatalogService(catalog repository.CatalogRepository) CatalogService {
	return &catalogService{catalog: catalog}
}

func (s *catalogService) ListDestinations(ctx context.Context) ([]domain.Destination, error) {
	out, err := s.catalog.ListDestinations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return out, nil
}

func (s *catalogService) ListAmenities(ctx context.Context) ([]domain.Amenity, error) {
	out, err := s.catalog.ListAmenities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list amenities: %w", err)
	}
	return out, nil
}

func (s *catalogService) GetDestination(ctx context.Context, id int64) (*domain.Destination, error) {
	d, err := s.catalog.GetDestination(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	if d == nil {
		return nil, domain.ErrDestinationMissing
	}
	return d, nil
}

func (s *catalogService) ListCruises(ctx context.Context) ([]domain.Cruise, error) {
	out, err := s.catalog.ListCruises(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cruises: %w", err)
	}
	return out, nil
}

func (s *catalogService) GetCruise(ctx context.Context, id int64) (*domain.Cruise, error) {
	c, err := s.catalog.GetCruise(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get cruise: %w", err)
	}
	if c == nil {
		return nil, domain.ErrCruiseNotFound
	}
	return c, nil
}

func (s *catalogService) ListCruisesByDestination(ctx context.Context, destinationID int64) ([]domain.Cruise, error) {
	if _, err := s.GetDestination(ctx, destinationID); err != nil {
		return nil, err
	}
	out, err := s.catalog.ListCruisesByDestination(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("list cruises by destination: %w", err)
	}
	return out, nil
}

func (s *catalogService) SearchCruises(ctx context.Context, req *domain.CruiseSearch) ([]domain.Cruise, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var f repository.CruiseFilter
	if req.DestinationID != nil {
		f.DestinationID = *req.DestinationID
	}
	if lo, hi, ok := req.DurationBounds(); ok {
		f.MinDuration, f.MaxDuration = lo, hi
	}

	out, err := s.catalog.SearchCruises(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search cruises: %w", err)
	}
	return out, nil
}

func (s *catalogService) ListTestimonials(ctx context.Context) ([]domain.Testimonial, error) {
	out, err := s.catalog.ListVerifiedTestimonials(ctx)
	if err != nil {
		return nil, fmt.Errorf("list testimonials: %w", err)
	}
	return out, nil
}

func (s *catalogService) ListCruiseTestimonials(ctx context.Context, cruiseID int64) ([]domain.Testimonial, error) {
	if _, err := s.GetCruise(ctx, cruiseID); err != nil {
		return nil, err
	}
	out, err := s.catalog.ListTestimonialsByCruise(ctx, cruiseID)
	if err != nil {
		return nil, fmt.Errorf("list cruise testimonials: %w", err)
	}
	return out, nil
}

func (s *catalogService) CreateTestimonial(ctx context.Context, userID *int64, req *domain.CreateTestimonialRequest) (*domain.Testimonial, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &domain.Testimonial{
		UserID:    userID,
		CruiseID:  req.CruiseID,
		Name:      req.Name,
		Comment:   req.Comment,
		Rating:    req.Rating,
		AvatarURL: req.AvatarURL,
	}
	if req.CruiseID != nil {
		cruise, err := s.GetCruise(ctx, *req.CruiseID)
		if err != nil {
			return nil, err
		}
		t.CruiseName = cruise.Title
	}

	created, err := s.catalog.CreateTestimonial(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create testimonial: %w", err)
	}
	logger.InfoContext(ctx, "Testimonial submitted", "testimonial_id", created.ID)
	return created, nil
}

func (s *catalogService) VerifyTestimonial(ctx context.Context, id int64) (*domain.Testimonial, error) {
	t, err := s.catalog.VerifyTestimonial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("verify testimonial: %w", err)
	}
	if t == nil {
		return nil, domain.ErrTestimonialNotFound
	}
	return t, nil
}
