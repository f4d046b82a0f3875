package note

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeConsultation Type = "CONSULTATION"
	TypeProgress     Type = "PROGRESS"
	TypeNursing      Type = "NURSING"
	TypeDischarge    Type = "DISCHARGE"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeConsultation, TypeProgress, TypeNursing, TypeDischarge:
		return t, nil
	}
	return "", fmt.Errorf("unknown note type %q", s)
}

// Note is a clinical note written against a visit.
type Note struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	VisitID      uuid.UUID `json:"visit_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	AuthorID     uuid.UUID `json:"author_id"`
	Type         Type      `json:"type"`
	Content      string    `json:"content"`
	Diagnosis    *string   `json:"diagnosis,omitempty"`
	Prescription *string   `json:"prescription,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	AuthorName string `json:"author_name,omitempty"`
	AuthorRole string `json:"author_role,omitempty"`
}

type CreateRequest struct {
	Type         string `json:"type" validate:"required"`
	Content      string `json:"content" validate:"required,max=20000"`
	Diagnosis    string `json:"diagnosis" validate:"omitempty,max=2000"`
	Prescription string `json:"prescription" validate:"omitempty,max=5000"`
}

type UpdateRequest struct {
	Type         *string `json:"type"`
	Content      *string `json:"content" validate:"omitempty,max=20000"`
	Diagnosis    *string `json:"diagnosis" validate:"omitempty,max=2000"`
	Prescription *string `json:"prescription" validate:"omitempty,max=5000"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
