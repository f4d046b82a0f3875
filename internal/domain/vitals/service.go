package vitals

import (
	"context"
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

type bounds struct {
	field    string
	min, max float64
}

var (
	temperatureRange = bounds{"temperature_c", 30, 45}
	systolicRange    = bounds{"systolic_bp", 50, 300}
	diastolicRange   = bounds{"diastolic_bp", 20, 200}
	heartRateRange   = bounds{"heart_rate", 20, 300}
	respiratoryRange = bounds{"respiratory_rate", 4, 80}
	spo2Range        = bounds{"spo2", 0, 100}
	weightRange      = bounds{"weight_kg", 0.5, 500}
	heightRange      = bounds{"height_cm", 20, 300}
)

func (b bounds) check(v float64) error {
	if v < b.min || v > b.max {
		return apperr.Invalid("%s must be between %g and %g", b.field, b.min, b.max)
	}
	return nil
}

func checkFloat(b bounds, v *float64) error {
	if v == nil {
		return nil
	}
	return b.check(*v)
}

func checkInt(b bounds, v *int) error {
	if v == nil {
		return nil
	}
	return b.check(float64(*v))
}

// Check validates a request independently of struct tags, so zero values
// are range checked too.
func Check(req RecordRequest) error {
	if req.empty() {
		return apperr.Invalid("at least one measurement is required")
	}
	for _, err := range []error{
		checkFloat(temperatureRange, req.TemperatureC),
		checkInt(systolicRange, req.SystolicBP),
		checkInt(diastolicRange, req.DiastolicBP),
		checkInt(heartRateRange, req.HeartRate),
		checkInt(respiratoryRange, req.RespiratoryRate),
		checkInt(spo2Range, req.SpO2),
		checkFloat(weightRange, req.WeightKg),
		checkFloat(heightRange, req.HeightCm),
	} {
		if err != nil {
			return err
		}
	}
	if req.SystolicBP != nil && req.DiastolicBP != nil && *req.SystolicBP <= *req.DiastolicBP {
		return apperr.Invalid("systolic_bp must be greater than diastolic_bp")
	}
	return nil
}

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

// Record stores a set of measurements against an open visit.
func (s *Service) Record(ctx context.Context, acct *auth.AccountContext, visitID uuid.UUID, req RecordRequest) (*Vitals, error) {
	if err := Check(req); err != nil {
		return nil, err
	}

	var out *Vitals
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetOpen(ctx, acct, visitID)
		if err != nil {
			return err
		}
		rec := &Vitals{
			TenantID:        v.TenantID,
			VisitID:         v.ID,
			PatientID:       v.PatientID,
			TemperatureC:    req.TemperatureC,
			SystolicBP:      req.SystolicBP,
			DiastolicBP:     req.DiastolicBP,
			HeartRate:       req.HeartRate,
			RespiratoryRate: req.RespiratoryRate,
			SpO2:            req.SpO2,
			WeightKg:        req.WeightKg,
			HeightCm:        req.HeightCm,
			BMI:             BMI(req.WeightKg, req.HeightCm),
			RecordedBy:      acct.AccountUUID(),
			RecordedByName:  acct.Name,
		}
		if n := strings.TrimSpace(req.Notes); n != "" {
			rec.Notes = &n
		}
		if err := s.repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("record vitals: %w", err)
		}

		entry := audit.ByAccount(acct, audit.ActionCreate, audit.EntityVitals, rec.ID.String())
		entry.Details = map[string]interface{}{"visit_id": v.ID.String()}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListForVisit(ctx context.Context, acct *auth.AccountContext, visitID uuid.UUID) ([]*Vitals, error) {
	if _, err := s.visits.Get(ctx, acct, visitID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByVisit(ctx, acct.TenantUUID(), visitID)
	if err != nil {
		return nil, fmt.Errorf("list visit vitals: %w", err)
	}
	if list == nil {
		list = []*Vitals{}
	}
	return list, nil
}

// ListForPatient returns the vitals history of a patient, newest first.
func (s *Service) ListForPatient(ctx context.Context, acct *auth.AccountContext, patientID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	ok, err := s.patients.PatientExists(ctx, acct.TenantUUID(), patientID)
	if err != nil {
		return nil, 0, fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return nil, 0, apperr.NotFound("patient")
	}
	list, total, err := s.repo.ListByPatient(ctx, acct.TenantUUID(), patientID, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient vitals: %w", err)
	}
	if list == nil {
		list = []*Vitals{}
	}
	return list, total, nil
}
