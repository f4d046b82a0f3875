package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToUpper(strings.TrimSpace(s)))
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return g, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

type Patient struct {
	ID                    uuid.UUID  `json:"id"`
	TenantID              uuid.UUID  `json:"tenant_id"`
	MRN                   string     `json:"mrn"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Gender                Gender     `json:"gender"`
	Phone                 *string    `json:"phone,omitempty"`
	Email                 *string    `json:"email,omitempty"`
	Address               *string    `json:"address,omitempty"`
	BloodGroup            *string    `json:"blood_group,omitempty"`
	Allergies             *string    `json:"allergies,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	CreatedBy             *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Registration is the result of registering a patient, with the first
// visit when the patient was triaged at the desk.
type Registration struct {
	Patient *Patient     `json:"patient"`
	Visit   *visit.Visit `json:"visit,omitempty"`
}

// Detail is a patient with their latest visits.
type Detail struct {
	*Patient
	VisitCount   int            `json:"visit_count"`
	RecentVisits []*visit.Visit `json:"recent_visits"`
}

type CreateRequest struct {
	MRN                   string `json:"mrn" validate:"omitempty,max=50"`
	FirstName             string `json:"first_name" validate:"required,max=100"`
	LastName              string `json:"last_name" validate:"required,max=100"`
	DateOfBirth           string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender                string `json:"gender" validate:"required"`
	Phone                 string `json:"phone" validate:"omitempty,max=30"`
	Email                 string `json:"email" validate:"omitempty,email,max=254"`
	Address               string `json:"address" validate:"omitempty,max=500"`
	BloodGroup            string `json:"blood_group" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies             string `json:"allergies" validate:"omitempty,max=2000"`
	EmergencyContactName  string `json:"emergency_contact_name" validate:"omitempty,max=100"`
	EmergencyContactPhone string `json:"emergency_contact_phone" validate:"omitempty,max=30"`

	// Visit, when present, checks the patient in right away.
	Visit *visit.OpenRequest `json:"visit"`
}

// UpdateRequest edits a patient; nil fields are left untouched and an
// empty string clears an optional field.
type UpdateRequest struct {
	FirstName             *string `json:"first_name" validate:"omitempty,max=100"`
	LastName              *string `json:"last_name" validate:"omitempty,max=100"`
	DateOfBirth           *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender                *string `json:"gender"`
	Phone                 *string `json:"phone" validate:"omitempty,max=30"`
	Email                 *string `json:"email" validate:"omitempty,email,max=254"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	BloodGroup            *string `json:"blood_group" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies             *string `json:"allergies" validate:"omitempty,max=2000"`
	EmergencyContactName  *string `json:"emergency_contact_name" validate:"omitempty,max=100"`
	EmergencyContactPhone *string `json:"emergency_contact_phone" validate:"omitempty,max=30"`
}

// ListFilter narrows a patient search. Query matches name, MRN or phone.
type ListFilter struct {
	Query  string
	Gender Gender
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
