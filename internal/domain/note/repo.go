package note

import (
	"context"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Note, error)
	Update(ctx context.Context, n *Note) error
	ListByVisit(ctx context.Context, tenantID, visitID uuid.UUID) ([]*Note, error)
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, p pagination.Params) ([]*Note, int, error)
}

// Visits is satisfied by *visit.Service.
type Visits interface {
	Get(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error)
	GetOpen(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error)
}
