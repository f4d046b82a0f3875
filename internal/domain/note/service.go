package note

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

var (
	errInvalidType  = apperr.Invalid("type must be one of CONSULTATION, PROGRESS, NURSING, DISCHARGE")
	errNursingOnly  = apperr.Forbidden("nurses may only write NURSING notes")
	errNotAuthor    = apperr.Forbidden("only the author can edit this note")
	errEmptyContent = apperr.Invalid("content must not be empty")
)

type Service struct {
	repo     Repository
	visits   Visits
	patients visit.PatientChecker
	tx       db.Transactor
	audit    audit.Recorder
}

func NewService(repo Repository, visits Visits, patients visit.PatientChecker, tx db.Transactor, rec audit.Recorder) *Service {
	return &Service{repo: repo, visits: visits, patients: patients, tx: tx, audit: rec}
}

// Create writes a note on an open visit.
func (s *Service) Create(ctx context.Context, acct *auth.AccountContext, visitID uuid.UUID, req CreateRequest) (*Note, error) {
	typ, err := s.noteType(acct, req.Type)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errEmptyContent
	}

	var out *Note
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetOpen(ctx, acct, visitID)
		if err != nil {
			return err
		}
		n := &Note{
			TenantID:     v.TenantID,
			VisitID:      v.ID,
			PatientID:    v.PatientID,
			AuthorID:     acct.AccountUUID(),
			Type:         typ,
			Content:      content,
			Diagnosis:    optional(req.Diagnosis),
			Prescription: optional(req.Prescription),
			AuthorName:   acct.Name,
			AuthorRole:   string(acct.Role),
		}
		if err := s.repo.Create(ctx, n); err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionCreate, audit.EntityNote, n.ID.String())
		entry.Details = map[string]interface{}{"visit_id": v.ID.String(), "type": string(n.Type)}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListForVisit(ctx context.Context, acct *auth.AccountContext, visitID uuid.UUID) ([]*Note, error) {
	if _, err := s.visits.Get(ctx, acct, visitID); err != nil {
		return nil, err
	}
	notes, err := s.repo.ListByVisit(ctx, acct.TenantUUID(), visitID)
	if err != nil {
		return nil, fmt.Errorf("list visit notes: %w", err)
	}
	if notes == nil {
		notes = []*Note{}
	}
	return notes, nil
}

// ListForPatient returns the note history of a patient, newest first.
func (s *Service) ListForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, p pagination.Params) ([]*Note, int, error) {
	ok, err := s.patients.PatientExists(ctx, acct.TenantUUID(), patientID)
	if err != nil {
		return nil, 0, fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return nil, 0, apperr.NotFound("patient")
	}
	notes, total, err := s.repo.ListByPatient(ctx, acct.TenantUUID(), patientID, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient notes: %w", err)
	}
	if notes == nil {
		notes = []*Note{}
	}
	return notes, total, nil
}

// Update edits a note. Only its author may do so, and only while the visit
// is still open.
func (s *Service) Update(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, req UpdateRequest) (*Note, error) {
	var out *Note
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.GetByID(ctx, acct.TenantUUID(), id)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("clinical note")
		}
		if err != nil {
			return fmt.Errorf("get note: %w", err)
		}
		if n.AuthorID != acct.AccountUUID() {
			return errNotAuthor
		}
		if _, err := s.visits.GetOpen(ctx, acct, n.VisitID); err != nil {
			return err
		}

		var changed []string
		if req.Type != nil {
			typ, err := s.noteType(acct, *req.Type)
			if err != nil {
				return err
			}
			if typ != n.Type {
				n.Type = typ
				changed = append(changed, "type")
			}
		}
		if req.Content != nil {
			content := strings.TrimSpace(*req.Content)
			if content == "" {
				return errEmptyContent
			}
			if content != n.Content {
				n.Content = content
				changed = append(changed, "content")
			}
		}
		if req.Diagnosis != nil {
			n.Diagnosis = optional(*req.Diagnosis)
			changed = append(changed, "diagnosis")
		}
		if req.Prescription != nil {
			n.Prescription = optional(*req.Prescription)
			changed = append(changed, "prescription")
		}
		if len(changed) == 0 {
			out = n
			return nil
		}

		if err := s.repo.Update(ctx, n); err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionUpdate, audit.EntityNote, n.ID.String())
		entry.Details = map[string]interface{}{"fields": changed}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) noteType(acct *auth.AccountContext, raw string) (Type, error) {
	typ, err := ParseType(raw)
	if err != nil {
		return "", errInvalidType
	}
	if acct.Role == auth.RoleNurse && typ != TypeNursing {
		return "", errNursingOnly
	}
	return typ, nil
}
