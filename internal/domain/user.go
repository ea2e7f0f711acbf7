package domain

import (
	"strings"
	"time"
)

type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	FirstName        *string    `json:"firstName"`
	LastName         *string    `json:"lastName"`
	Phone            *string    `json:"phone"`
	Address          *string    `json:"address"`
	City             *string    `json:"city"`
	State            *string    `json:"state"`
	ZipCode          *string    `json:"zipCode"`
	Country          *string    `json:"country"`
	IsVerified       bool       `json:"isVerified"`
	LastLogin        *time.Time `json:"lastLogin"`
	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// PublicUser is the projection returned to clients. It has no credential or token fields.
type PublicUser struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  *string    `json:"firstName"`
	LastName   *string    `json:"lastName"`
	Phone      *string    `json:"phone"`
	Address    *string    `json:"address"`
	City       *string    `json:"city"`
	State      *string    `json:"state"`
	ZipCode    *string    `json:"zipCode"`
	Country    *string    `json:"country"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Phone:      u.Phone,
		Address:    u.Address,
		City:       u.City,
		State:      u.State,
		ZipCode:    u.ZipCode,
		Country:    u.Country,
		IsVerified: u.IsVerified,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

// ProfileFields is the allow-list of user-editable profile attributes.
type ProfileFields struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Address   *string `json:"address" validate:"omitempty,max=200"`
	City      *string `json:"city" validate:"omitempty,max=100"`
	State     *string `json:"state" validate:"omitempty,max=100"`
	ZipCode   *string `json:"zipCode" validate:"omitempty,max=20"`
	Country   *string `json:"country" validate:"omitempty,max=100"`
}

func (p *ProfileFields) Normalize() {
	for _, f := range []**string{&p.FirstName, &p.LastName, &p.Phone, &p.Address, &p.City, &p.State, &p.ZipCode, &p.Country} {
		if *f != nil {
			s := strings.TrimSpace(**f)
			*f = &s
		}
	}
}

type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	ProfileFields
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.ProfileFields.Normalize()
}

func (r *RegisterRequest) Validate() error {
	return ValidateStruct(r)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return FieldError("username", "Username is required")
	}
	if r.Password == "" {
		return FieldError("password", "Password is required")
	}
	return nil
}

// UpdateProfileRequest accepts only profile fields and email. A password key
// is rejected at decode time because it is not declared here.
type UpdateProfileRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
	ProfileFields
}

func (r *UpdateProfileRequest) Normalize() {
	if r.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &e
	}
	r.ProfileFields.Normalize()
}

func (r *UpdateProfileRequest) Validate() error {
	return ValidateStruct(r)
}

func (r *UpdateProfileRequest) Empty() bool {
	p := r.ProfileFields
	return r.Email == nil && p.FirstName == nil && p.LastName == nil && p.Phone == nil &&
		p.Address == nil && p.City == nil && p.State == nil && p.ZipCode == nil && p.Country == nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

func (r *ChangePasswordRequest) Validate() error {
	return ValidateStruct(r)
}

type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ResetRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *ResetRequest) Validate() error {
	return ValidateStruct(r)
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (r *ResetPasswordRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *ResetPasswordRequest) Validate() error {
	return ValidateStruct(r)
}
