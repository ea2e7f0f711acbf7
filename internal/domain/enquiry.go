package domain

import (
	"fmt"
	"strings"
	"time"
)

type EnquiryStatus string

const (
	EnquirySubmitted EnquiryStatus = "submitted"
	EnquiryInReview  EnquiryStatus = "in_review"
	EnquiryResponded EnquiryStatus = "responded"
	EnquiryClosed    EnquiryStatus = "closed"
)

func ParseEnquiryStatus(s string) (EnquiryStatus, bool) {
	switch EnquiryStatus(strings.ToLower(strings.TrimSpace(s))) {
	case EnquirySubmitted:
		return EnquirySubmitted, true
	case EnquiryInReview:
		return EnquiryInReview, true
	case EnquiryResponded:
		return EnquiryResponded, true
	case EnquiryClosed:
		return EnquiryClosed, true
	default:
		return "", false
	}
}

var enquiryEdges = map[EnquiryStatus][]EnquiryStatus{
	EnquirySubmitted: {EnquiryInReview, EnquiryClosed},
	EnquiryInReview:  {EnquiryResponded, EnquiryClosed},
	EnquiryResponded: {EnquiryClosed},
}

func (s EnquiryStatus) CanTransitionTo(next EnquiryStatus) bool {
	for _, allowed := range enquiryEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func EnquiryTransitionError(from, to EnquiryStatus) *Error {
	return Conflict(fmt.Sprintf("Cannot change enquiry status from %s to %s", from, to)).
		With("currentStatus", string(from))
}

type Enquiry struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            *string           `json:"phone"`
	Subject          string            `json:"subject"`
	Message          string            `json:"message"`
	Status           EnquiryStatus     `json:"status"`
	AssignedToUserID *int64            `json:"assignedToUserId"`
	UserID           *int64            `json:"userId"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Responses        []EnquiryResponse `json:"responses,omitempty"`
}

type EnquiryResponse struct {
	ID                int64     `json:"id"`
	EnquiryID         int64     `json:"enquiryId"`
	ResponseText      string    `json:"responseText"`
	RespondedByUserID int64     `json:"respondedByUserId"`
	RespondedAt       time.Time `json:"respondedAt"`
}

type CreateEnquiryRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Email   string  `json:"email" validate:"required,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=30"`
	Subject string  `json:"subject" validate:"required,max=200"`
	Message string  `json:"message" validate:"required,min=10,max=5000"`
}

func (r *CreateEnquiryRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *CreateEnquiryRequest) Validate() error {
	return ValidateStruct(r)
}

type UpdateEnquiryStatusRequest struct {
	Status string `json:"status"`
}

type AssignEnquiryRequest struct {
	AssignedToUserID int64 `json:"assignedToUserId" validate:"required,gt=0"`
}

func (r *AssignEnquiryRequest) Validate() error {
	return ValidateStruct(r)
}

type CreateEnquiryResponseRequest struct {
	ResponseText string `json:"responseText" validate:"required,max=5000"`
}

func (r *CreateEnquiryResponseRequest) Normalize() {
	r.ResponseText = strings.TrimSpace(r.ResponseText)
}

func (r *CreateEnquiryResponseRequest) Validate() error {
	return ValidateStruct(r)
}
