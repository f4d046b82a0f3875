package vitals

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

type vitalsRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &vitalsRepoPG{pool: pool}
}

func (r *vitalsRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const vitalsColumns = `v.id, v.tenant_id, v.visit_id, v.patient_id, v.temperature_c, v.systolic_bp,
	v.diastolic_bp, v.heart_rate, v.respiratory_rate, v.spo2, v.weight_kg, v.height_cm, v.bmi,
	v.notes, v.recorded_by, v.recorded_at, a.name`

const vitalsFrom = `vitals v JOIN accounts a ON a.id = v.recorded_by`

func (r *vitalsRepoPG) Create(ctx context.Context, v *Vitals) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vitals (id, tenant_id, visit_id, patient_id, temperature_c, systolic_bp,
			diastolic_bp, heart_rate, respiratory_rate, spo2, weight_kg, height_cm, bmi, notes,
			recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING recorded_at`,
		v.ID, v.TenantID, v.VisitID, v.PatientID, v.TemperatureC, v.SystolicBP,
		v.DiastolicBP, v.HeartRate, v.RespiratoryRate, v.SpO2, v.WeightKg, v.HeightCm, v.BMI, v.Notes,
		v.RecordedBy,
	).Scan(&v.RecordedAt)
	return db.MapError(err)
}

func (r *vitalsRepoPG) ListByVisit(ctx context.Context, tenantID, visitID uuid.UUID) ([]*Vitals, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+vitalsColumns+` FROM `+vitalsFrom+`
		WHERE v.tenant_id = $1 AND v.visit_id = $2
		ORDER BY v.recorded_at, v.id`, tenantID, visitID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collectVitals(rows)
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM vitals WHERE tenant_id = $1 AND patient_id = $2`, tenantID, patientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(vitalsColumns).From(vitalsFrom).
		Where("v.tenant_id = ? AND v.patient_id = ?", tenantID, patientID).
		OrderBy("v.recorded_at DESC", "v.id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	list, err := collectVitals(rows)
	return list, total, err
}

func collectVitals(rows pgx.Rows) ([]*Vitals, error) {
	defer rows.Close()
	var out []*Vitals
	for rows.Next() {
		var v Vitals
		err := rows.Scan(&v.ID, &v.TenantID, &v.VisitID, &v.PatientID, &v.TemperatureC, &v.SystolicBP,
			&v.DiastolicBP, &v.HeartRate, &v.RespiratoryRate, &v.SpO2, &v.WeightKg, &v.HeightCm, &v.BMI,
			&v.Notes, &v.RecordedBy, &v.RecordedAt, &v.RecordedByName)
		if err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
