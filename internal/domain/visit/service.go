package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/internal/platform/ids"
	"github.com/opd/opd/pkg/pagination"
)

var (
	errOpenVisit      = apperr.Conflict("patient already has an open visit")
	errNotDoctor      = apperr.Invalid("doctor_id must reference an active doctor")
	errVisitClosed    = apperr.Conflict("visit is already completed or cancelled")
	errVisitChanged   = apperr.Conflict("visit status changed concurrently, reload and retry")
	errInvalidStatus  = apperr.Invalid("status must be one of WAITING, IN_PROGRESS, COMPLETED, CANCELLED")
	errCancelOnlyRole = apperr.Forbidden("receptionists may only cancel visits")
)

type Service struct {
	repo     Repository
	patients PatientChecker
	doctors  DoctorChecker
	tx       db.Transactor
	audit    audit.Recorder
	now      func() time.Time
}

func NewService(repo Repository, patients PatientChecker, doctors DoctorChecker, tx db.Transactor, rec audit.Recorder) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		tx:       tx,
		audit:    rec,
		now:      time.Now,
	}
}

// Open checks patientID in as a WAITING visit. It joins the caller's
// transaction so registration with triage commits as one unit.
func (s *Service) Open(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, req OpenRequest) (*Visit, error) {
	priority, err := ParsePriority(req.Priority)
	if err != nil {
		return nil, apperr.Invalid("priority must be one of LOW, NORMAL, HIGH, EMERGENCY")
	}
	tenantID := acct.TenantUUID()
	createdBy := acct.AccountUUID()
	now := s.now().UTC()

	v := &Visit{
		TenantID:       tenantID,
		PatientID:      patientID,
		VisitNumber:    ids.VisitNumber(now),
		Status:         StatusWaiting,
		Priority:       priority,
		ChiefComplaint: optional(req.ChiefComplaint),
		Department:     optional(req.Department),
		CheckInAt:      now,
		CreatedBy:      &createdBy,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.patients.PatientExists(ctx, tenantID, patientID)
		if err != nil {
			return fmt.Errorf("check patient: %w", err)
		}
		if !exists {
			return apperr.NotFound("patient")
		}

		if req.DoctorID != "" {
			doctorID, err := s.checkDoctor(ctx, tenantID, req.DoctorID)
			if err != nil {
				return err
			}
			v.DoctorID = &doctorID
		}

		open, err := s.repo.HasOpenVisit(ctx, tenantID, patientID)
		if err != nil {
			return fmt.Errorf("check open visit: %w", err)
		}
		if open {
			return errOpenVisit
		}

		if err := s.repo.Create(ctx, v); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) && db.ConstraintName(err) == OpenVisitConstraint {
				return errOpenVisit
			}
			return fmt.Errorf("create visit: %w", err)
		}

		entry := audit.ByAccount(acct, audit.ActionCreate, audit.EntityVisit, v.ID.String())
		entry.Details = map[string]interface{}{
			"patient_id":   patientID.String(),
			"visit_number": v.VisitNumber,
			"priority":     string(v.Priority),
		}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, acct.TenantUUID(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("visit")
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// GetOpen returns the visit when it still accepts clinical entries.
func (s *Service) GetOpen(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*Visit, error) {
	v, err := s.Get(ctx, acct, id)
	if err != nil {
		return nil, err
	}
	if !v.Status.Open() {
		return nil, errVisitClosed
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, acct *auth.AccountContext, f ListFilter, p pagination.Params) ([]*Visit, int, error) {
	visits, total, err := s.repo.List(ctx, acct.TenantUUID(), f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	if visits == nil {
		visits = []*Visit{}
	}
	return visits, total, nil
}

// RecentForPatient returns the latest visits of a patient, newest first.
func (s *Service) RecentForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, limit int) ([]*Visit, error) {
	visits, err := s.repo.RecentByPatient(ctx, acct.TenantUUID(), patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent visits: %w", err)
	}
	if visits == nil {
		visits = []*Visit{}
	}
	return visits, nil
}

func (s *Service) CountForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID) (int, error) {
	n, err := s.repo.CountByPatient(ctx, acct.TenantUUID(), patientID)
	if err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// UpdateStatus moves a visit along its lifecycle. A doctor starting an
// unassigned visit takes it.
func (s *Service) UpdateStatus(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, req StatusRequest) (*Visit, error) {
	next, err := ParseStatus(req.Status)
	if err != nil {
		return nil, errInvalidStatus
	}
	if acct.Role == auth.RoleReceptionist && next != StatusCancelled {
		return nil, errCancelOnlyRole
	}

	var out *Visit
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		v, err := s.Get(ctx, acct, id)
		if err != nil {
			return err
		}
		if !v.Status.Open() {
			return errVisitClosed
		}
		if !v.Status.CanTransition(next) {
			return apperr.Conflict("cannot move visit from %s to %s", v.Status, next)
		}

		prev := v.Status
		now := s.now().UTC()
		v.Status = next
		switch next {
		case StatusInProgress:
			v.StartedAt = &now
			if v.DoctorID == nil && acct.Role == auth.RoleDoctor {
				doctorID := acct.AccountUUID()
				v.DoctorID = &doctorID
				v.DoctorName = acct.Name
			}
		case StatusCompleted:
			v.CompletedAt = &now
		case StatusCancelled:
			v.CompletedAt = &now
			v.CancelReason = optional(req.CancelReason)
		}

		if err := s.repo.UpdateStatus(ctx, v, prev); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return errVisitChanged
			}
			return fmt.Errorf("update visit status: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionStatusChange, audit.EntityVisit, v.ID.String())
		entry.Details = map[string]interface{}{"from": string(prev), "to": string(next)}
		if v.CancelReason != nil {
			entry.Details["reason"] = *v.CancelReason
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Assign sets the doctor of an open visit.
func (s *Service) Assign(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, req AssignRequest) (*Visit, error) {
	var out *Visit
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		v, err := s.GetOpen(ctx, acct, id)
		if err != nil {
			return err
		}
		doctorID, err := s.checkDoctor(ctx, v.TenantID, req.DoctorID)
		if err != nil {
			return err
		}
		if err := s.repo.Assign(ctx, v.TenantID, v.ID, doctorID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return errVisitClosed
			}
			return fmt.Errorf("assign visit: %w", err)
		}

		entry := audit.ByAccount(acct, audit.ActionAssign, audit.EntityVisit, v.ID.String())
		entry.Details = map[string]interface{}{"doctor_id": doctorID.String()}
		if v.DoctorID != nil {
			entry.Details["previous_doctor_id"] = v.DoctorID.String()
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}

		out, err = s.Get(ctx, acct, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) checkDoctor(ctx context.Context, tenantID uuid.UUID, raw string) (uuid.UUID, error) {
	doctorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errNotDoctor
	}
	ok, err := s.doctors.IsActiveDoctor(ctx, tenantID, doctorID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check doctor: %w", err)
	}
	if !ok {
		return uuid.Nil, errNotDoctor
	}
	return doctorID, nil
}
