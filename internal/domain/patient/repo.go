package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/opd/opd/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Patient, int, error)
	PatientExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}
