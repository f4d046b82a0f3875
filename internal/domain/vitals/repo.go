package vitals

import (
	"context"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, v *Vitals) error
	ListByVisit(ctx context.Context, tenantID, visitID uuid.UUID) ([]*Vitals, error)
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, p pagination.Params) ([]*Vitals, int, error)
}

// Visits is satisfied by *visit.Service.
type Visits interface {
	Get(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error)
	GetOpen(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error)
}
