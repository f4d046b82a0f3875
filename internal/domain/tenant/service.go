package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
)

type Service struct {
	repo  Repository
	tx    db.Transactor
	audit audit.Recorder
}

func NewService(repo Repository, tx db.Transactor, rec audit.Recorder) *Service {
	return &Service{repo: repo, tx: tx, audit: rec}
}

// Create inserts an active hospital. It joins the caller's transaction, so
// registration can create the first admin atomically with it.
func (s *Service) Create(ctx context.Context, t *Tenant) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Email = NormalizeEmail(t.Email)
	if t.Name == "" {
		return apperr.Invalid("hospital name is required")
	}
	if t.Email == "" {
		return apperr.Invalid("hospital email is required")
	}
	t.Active = true
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return apperr.Wrap(apperr.KindConflict, "hospital email already registered", err)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("hospital")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// Update applies req to the caller's hospital.
func (s *Service) Update(ctx context.Context, acct *auth.AccountContext, req UpdateRequest) (*Tenant, error) {
	var out *Tenant
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.Get(ctx, acct.TenantUUID())
		if err != nil {
			return err
		}

		changed := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Invalid("name must not be empty")
			}
			if name != t.Name {
				t.Name = name
				changed["name"] = name
			}
		}
		if req.Email != nil {
			email := NormalizeEmail(*req.Email)
			if email != t.Email {
				t.Email = email
				changed["email"] = email
			}
		}
		if req.Phone != nil {
			t.Phone = optional(*req.Phone)
			changed["phone"] = t.Phone
		}
		if req.Address != nil {
			t.Address = optional(*req.Address)
			changed["address"] = t.Address
		}
		if len(changed) == 0 {
			out = t
			return nil
		}

		if err := s.repo.Update(ctx, t); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) {
				return apperr.Wrap(apperr.KindConflict, "hospital email already registered", err)
			}
			return fmt.Errorf("update tenant: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionUpdate, audit.EntityTenant, t.ID.String())
		entry.Details = changed
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive switches a hospital on or off. Deactivation locks every account
// of the hospital out on its next request. Used by the operator CLI, so the
// audit row has no account.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Tenant, error) {
	var out *Tenant
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetActive(ctx, id, active); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return apperr.NotFound("hospital")
			}
			return fmt.Errorf("set tenant active: %w", err)
		}
		action := audit.ActionDeactivate
		if active {
			action = audit.ActionActivate
		}
		if err := s.audit.Record(ctx, &audit.Entry{
			TenantID:   id,
			Action:     action,
			EntityType: audit.EntityTenant,
			EntityID:   id.String(),
		}); err != nil {
			return err
		}
		t, err := s.Get(ctx, id)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Specialties(ctx context.Context, id uuid.UUID) ([]string, error) {
	specialties, err := s.repo.Specialties(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	if specialties == nil {
		specialties = []string{}
	}
	return specialties, nil
}
