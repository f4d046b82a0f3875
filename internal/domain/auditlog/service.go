// Package auditlog exposes a tenant's audit trail to its administrators.
package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
)

// Record is an audit entry as listed, with the acting account's name.
type Record struct {
	audit.Entry
	AccountName string `json:"account_name,omitempty"`
}

type Filter struct {
	EntityType string
	EntityID   string
	Action     audit.Action
	AccountID  *uuid.UUID
	From       *time.Time
	To         *time.Time
}

type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID, f Filter, p pagination.Params) ([]*Record, int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the tenant's entries, newest first.
func (s *Service) List(ctx context.Context, acct *auth.AccountContext, f Filter, p pagination.Params) ([]*Record, int, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, 0, apperr.Invalid("unknown action %q", string(f.Action))
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apperr.Invalid("to must not be before from")
	}
	records, total, err := s.repo.List(ctx, acct.TenantUUID(), f, p)
	if err != nil {
		return nil, 0, err
	}
	if records == nil {
		records = []*Record{}
	}
	return records, total, nil
}
