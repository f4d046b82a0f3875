package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/auth"
)

// Account is a staff login. Emails are unique across all hospitals.
type Account struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         auth.Role  `json:"role"`
	Specialty    *string    `json:"specialty,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session is returned by login and registration. The token is also set as
// the session cookie.
type Session struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expires_at"`
	Account   *auth.AccountContext `json:"account"`
}

type RegisterRequest struct {
	HospitalName    string `json:"hospital_name" validate:"required,min=2,max=200"`
	HospitalEmail   string `json:"hospital_email" validate:"required,email,max=254"`
	HospitalPhone   string `json:"hospital_phone" validate:"omitempty,max=30"`
	HospitalAddress string `json:"hospital_address" validate:"omitempty,max=500"`
	AdminName       string `json:"admin_name" validate:"required,min=2,max=100"`
	AdminEmail      string `json:"admin_email" validate:"required,email,max=254"`
	AdminPassword   string `json:"admin_password" validate:"required,min=8,max=72"`
	AdminPhone      string `json:"admin_phone" validate:"omitempty,max=30"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// CreateRequest adds a team member to the caller's hospital.
type CreateRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Name      string `json:"name" validate:"required,min=2,max=100"`
	Role      string `json:"role" validate:"required"`
	Specialty string `json:"specialty" validate:"omitempty,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=30"`
}

// UpdateRequest edits a team member; nil fields are left untouched.
type UpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=2,max=100"`
	Role      *string `json:"role"`
	Specialty *string `json:"specialty" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
}

// ListFilter narrows a team listing. Zero values match everything.
type ListFilter struct {
	Role      auth.Role
	Active    *bool
	Specialty string
	Query     string
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
