package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/internal/platform/ids"
	"github.com/opd/opd/pkg/pagination"
)

// RecentVisitLimit caps the visits returned with a patient.
const RecentVisitLimit = 5

var (
	errInvalidGender = apperr.Invalid("gender must be one of MALE, FEMALE, OTHER")
	errInvalidDOB    = apperr.Invalid("date_of_birth must be a past date in YYYY-MM-DD format")
	errHasVisits     = apperr.Conflict("patient has visits and cannot be deleted")
)

// Visits is satisfied by *visit.Service.
type Visits interface {
	Open(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, req visit.OpenRequest) (*visit.Visit, error)
	RecentForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, limit int) ([]*visit.Visit, error)
	CountForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID) (int, error)
}

type Service struct {
	repo   Repository
	visits Visits
	tx     db.Transactor
	audit  audit.Recorder
	now    func() time.Time
}

func NewService(repo Repository, visits Visits, tx db.Transactor, rec audit.Recorder) *Service {
	return &Service{repo: repo, visits: visits, tx: tx, audit: rec, now: time.Now}
}

// Register stores a new patient. When req.Visit is set the patient is also
// checked in; both succeed or neither is stored.
func (s *Service) Register(ctx context.Context, acct *auth.AccountContext, req CreateRequest) (*Registration, error) {
	gender, err := ParseGender(req.Gender)
	if err != nil {
		return nil, errInvalidGender
	}
	dob, err := s.birthDate(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	createdBy := acct.AccountUUID()

	p := &Patient{
		TenantID:              acct.TenantUUID(),
		MRN:                   strings.ToUpper(strings.TrimSpace(req.MRN)),
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		DateOfBirth:           dob,
		Gender:                gender,
		Phone:                 optional(req.Phone),
		Email:                 optional(strings.ToLower(req.Email)),
		Address:               optional(req.Address),
		BloodGroup:            optional(req.BloodGroup),
		Allergies:             optional(req.Allergies),
		EmergencyContactName:  optional(req.EmergencyContactName),
		EmergencyContactPhone: optional(req.EmergencyContactPhone),
		CreatedBy:             &createdBy,
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, apperr.Invalid("first_name and last_name are required")
	}
	if p.MRN == "" {
		p.MRN = ids.MRN(s.now())
	}

	out := &Registration{Patient: p}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) {
				return apperr.Wrap(apperr.KindConflict, "mrn already exists", err)
			}
			return fmt.Errorf("create patient: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionCreate, audit.EntityPatient, p.ID.String())
		entry.Details = map[string]interface{}{"mrn": p.MRN, "triaged": req.Visit != nil}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}

		if req.Visit != nil {
			v, err := s.visits.Open(ctx, acct, p.ID, *req.Visit)
			if err != nil {
				return err
			}
			out.Visit = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, acct.TenantUUID(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("patient")
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// Detail returns the patient with their visit count and latest visits.
func (s *Service) Detail(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*Detail, error) {
	p, err := s.Get(ctx, acct, id)
	if err != nil {
		return nil, err
	}
	recent, err := s.visits.RecentForPatient(ctx, acct, id, RecentVisitLimit)
	if err != nil {
		return nil, err
	}
	count, err := s.visits.CountForPatient(ctx, acct, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Patient: p, VisitCount: count, RecentVisits: recent}, nil
}

func (s *Service) List(ctx context.Context, acct *auth.AccountContext, f ListFilter, p pagination.Params) ([]*Patient, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	patients, total, err := s.repo.List(ctx, acct.TenantUUID(), f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return patients, total, nil
}

func (s *Service) Update(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	var out *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.Get(ctx, acct, id)
		if err != nil {
			return err
		}

		var changed []string
		setName := func(field string, dst *string, v *string) error {
			if v == nil {
				return nil
			}
			name := strings.TrimSpace(*v)
			if name == "" {
				return apperr.Invalid("%s must not be empty", field)
			}
			if name != *dst {
				*dst = name
				changed = append(changed, field)
			}
			return nil
		}
		if err := setName("first_name", &p.FirstName, req.FirstName); err != nil {
			return err
		}
		if err := setName("last_name", &p.LastName, req.LastName); err != nil {
			return err
		}
		if req.Gender != nil {
			g, err := ParseGender(*req.Gender)
			if err != nil {
				return errInvalidGender
			}
			if g != p.Gender {
				p.Gender = g
				changed = append(changed, "gender")
			}
		}
		if req.DateOfBirth != nil {
			dob, err := s.birthDate(*req.DateOfBirth)
			if err != nil {
				return err
			}
			p.DateOfBirth = dob
			changed = append(changed, "date_of_birth")
		}

		setOptional := func(field string, dst **string, v *string) {
			if v != nil {
				*dst = optional(*v)
				changed = append(changed, field)
			}
		}
		if req.Email != nil {
			lower := strings.ToLower(*req.Email)
			req.Email = &lower
		}
		setOptional("phone", &p.Phone, req.Phone)
		setOptional("email", &p.Email, req.Email)
		setOptional("address", &p.Address, req.Address)
		setOptional("blood_group", &p.BloodGroup, req.BloodGroup)
		setOptional("allergies", &p.Allergies, req.Allergies)
		setOptional("emergency_contact_name", &p.EmergencyContactName, req.EmergencyContactName)
		setOptional("emergency_contact_phone", &p.EmergencyContactPhone, req.EmergencyContactPhone)

		if len(changed) == 0 {
			out = p
			return nil
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		// Field names only; values are patient data.
		entry := audit.ByAccount(acct, audit.ActionUpdate, audit.EntityPatient, p.ID.String())
		entry.Details = map[string]interface{}{"fields": changed}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a patient who has never had a visit.
func (s *Service) Delete(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.Get(ctx, acct, id)
		if err != nil {
			return err
		}
		n, err := s.visits.CountForPatient(ctx, acct, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errHasVisits
		}
		if err := s.repo.Delete(ctx, p.TenantID, p.ID); err != nil {
			if errors.Is(err, db.ErrForeignKey) {
				return errHasVisits
			}
			return fmt.Errorf("delete patient: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionDelete, audit.EntityPatient, p.ID.String())
		entry.Details = map[string]interface{}{"mrn": p.MRN}
		return s.audit.Record(ctx, entry)
	})
}

func (s *Service) birthDate(raw string) (*time.Time, error) {
	dob, err := parseDate(raw)
	if err != nil {
		return nil, errInvalidDOB
	}
	if dob != nil && dob.After(s.now()) {
		return nil, errInvalidDOB
	}
	return dob, nil
}
