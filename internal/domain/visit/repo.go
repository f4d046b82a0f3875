package visit

import (
	"context"

	"github.com/google/uuid"

	"github.com/opd/opd/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Visit, error)
	// UpdateStatus writes status, timestamps and cancel reason of v only
	// while the stored status is still from. Otherwise it returns
	// db.ErrNotFound.
	UpdateStatus(ctx context.Context, v *Visit, from Status) error
	// Assign returns db.ErrNotFound unless the visit is still open.
	Assign(ctx context.Context, tenantID, id, doctorID uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Visit, int, error)
	RecentByPatient(ctx context.Context, tenantID, patientID uuid.UUID, limit int) ([]*Visit, error)
	HasOpenVisit(ctx context.Context, tenantID, patientID uuid.UUID) (bool, error)
	CountByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (int, error)
}

// PatientChecker is satisfied by the patient repository.
type PatientChecker interface {
	PatientExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

// DoctorChecker is satisfied by the account repository.
type DoctorChecker interface {
	IsActiveDoctor(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}
