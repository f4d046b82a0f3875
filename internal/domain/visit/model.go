package visit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a visit.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown visit status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether the visit still accepts notes, vitals and changes.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusInProgress
}

var transitions = map[Status][]Status{
	StatusWaiting:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a visit in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders the waiting queue.
type Priority string

const (
	PriorityLow       Priority = "LOW"
	PriorityNormal    Priority = "NORMAL"
	PriorityHigh      Priority = "HIGH"
	PriorityEmergency Priority = "EMERGENCY"
)

// ParsePriority accepts any case; an empty string means NORMAL.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(strings.ToUpper(s))
	if p.Rank() == 0 {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Rank is 1 for LOW up to 4 for EMERGENCY, and 0 for unknown values.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityEmergency:
		return 4
	}
	return 0
}

type Visit struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	VisitNumber    string     `json:"visit_number"`
	DoctorID       *uuid.UUID `json:"doctor_id,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	ChiefComplaint *string    `json:"chief_complaint,omitempty"`
	Department     *string    `json:"department,omitempty"`
	CheckInAt      time.Time  `json:"check_in_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelReason   *string    `json:"cancel_reason,omitempty"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Joined for display; empty on freshly created rows.
	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// OpenRequest checks a patient in. PatientID is taken from the path when
// the visit is opened as part of registration.
type OpenRequest struct {
	PatientID      string `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID       string `json:"doctor_id" validate:"omitempty,uuid"`
	Priority       string `json:"priority"`
	ChiefComplaint string `json:"chief_complaint" validate:"omitempty,max=1000"`
	Department     string `json:"department" validate:"omitempty,max=100"`
}

type StatusRequest struct {
	Status       string `json:"status" validate:"required"`
	CancelReason string `json:"cancel_reason" validate:"omitempty,max=500"`
}

type AssignRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
}

// ListFilter narrows a visit listing. Day selects visits checked in on
// that UTC calendar day.
type ListFilter struct {
	Status    Status
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Day       *time.Time
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
