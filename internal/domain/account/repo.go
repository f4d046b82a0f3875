package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	// GetByID is scoped to the tenant; accounts of other tenants are not found.
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Account, int, error)
	// LockAdmins serializes changes to the tenant's admin set until the
	// surrounding transaction ends.
	LockAdmins(ctx context.Context, tenantID uuid.UUID) error
	CountActiveAdmins(ctx context.Context, tenantID uuid.UUID) (int, error)
	IsActiveDoctor(ctx context.Context, tenantID, id uuid.UUID) (bool, error)

	auth.AccountLookup
}
