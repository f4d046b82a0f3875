package tenant

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// Specialties lists the distinct specialties of the tenant's active doctors.
	Specialties(ctx context.Context, id uuid.UUID) ([]string, error)
}
