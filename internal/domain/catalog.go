package domain

import (
	"strings"
	"time"
)

type Destination struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	ImageURL      string  `json:"imageUrl"`
	PriceFrom     int64   `json:"priceFrom"`
	Rating        float64 `json:"rating"`
	CruiseCount   int     `json:"cruiseCount"`
	DurationRange string  `json:"durationRange"`
}

type Amenity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

type Cruise struct {
	ID                int64    `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	DestinationID     int64    `json:"destinationId"`
	ImageURL          string   `json:"imageUrl"`
	DepartureFrom     string   `json:"departureFrom"`
	Duration          int      `json:"duration"`
	PricePerPerson    int64    `json:"pricePerPerson"`
	OriginalPrice     *int64   `json:"originalPrice"`
	CabinType         string   `json:"cabinType"`
	Inclusions        string   `json:"inclusions"`
	IsBestSeller      bool     `json:"isBestSeller"`
	IsNewItinerary    bool     `json:"isNewItinerary"`
	Rating            float64  `json:"rating"`
	AvailablePackages []string `json:"availablePackages"`
}

// CruiseSearch filters cruises. Zero values mean "any".
type CruiseSearch struct {
	DestinationID *int64  `json:"destination"`
	Date          *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Duration      *string `json:"duration" validate:"omitempty,oneof=1-5 6-10 11+"`
	Travelers     *int    `json:"travelers" validate:"omitempty,min=1,max=20"`
}

func (s *CruiseSearch) Validate() error {
	return ValidateStruct(s)
}

// DurationBounds translates the duration bucket into an inclusive day range;
// max is 0 when unbounded.
func (s *CruiseSearch) DurationBounds() (min, max int, ok bool) {
	if s.Duration == nil {
		return 0, 0, false
	}
	switch *s.Duration {
	case "1-5":
		return 1, 5, true
	case "6-10":
		return 6, 10, true
	case "11+":
		return 11, 0, true
	}
	return 0, 0, false
}

type Testimonial struct {
	ID         int64     `json:"id"`
	UserID     *int64    `json:"userId"`
	CruiseID   *int64    `json:"cruiseId"`
	Name       string    `json:"name"`
	CruiseName string    `json:"cruiseName"`
	Comment    string    `json:"comment"`
	Rating     int       `json:"rating"`
	AvatarURL  *string   `json:"avatarUrl"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateTestimonialRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	CruiseID  *int64  `json:"cruiseId" validate:"omitempty,gt=0"`
	Comment   string  `json:"comment" validate:"required,max=2000"`
	Rating    int     `json:"rating" validate:"required,min=1,max=5"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

func (r *CreateTestimonialRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Comment = strings.TrimSpace(r.Comment)
}

func (r *CreateTestimonialRequest) Validate() error {
	return ValidateStruct(r)
}
