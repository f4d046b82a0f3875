package visit

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

// OpenVisitConstraint is the partial unique index allowing one open visit
// per patient.
const OpenVisitConstraint = "visits_one_open_per_patient"

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitColumns = `v.id, v.tenant_id, v.patient_id, v.visit_number, v.doctor_id, v.status, v.priority,
	v.chief_complaint, v.department, v.check_in_at, v.started_at, v.completed_at, v.cancel_reason,
	v.created_by, v.created_at, v.updated_at,
	p.first_name || ' ' || p.last_name, COALESCE(d.name, '')`

const visitFrom = `visits v
	JOIN patients p ON p.id = v.patient_id
	LEFT JOIN accounts d ON d.id = v.doctor_id`

// queueOrder puts the most urgent visits first, oldest check-in first
// within a priority.
const queueOrder = `CASE v.priority
	WHEN 'EMERGENCY' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 ELSE 1 END DESC`

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (id, tenant_id, patient_id, visit_number, doctor_id, status, priority,
			chief_complaint, department, check_in_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		v.ID, v.TenantID, v.PatientID, v.VisitNumber, v.DoctorID, string(v.Status), string(v.Priority),
		v.ChiefComplaint, v.Department, v.CheckInAt, v.CreatedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	return db.MapError(err)
}

func (r *visitRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Visit, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitColumns+` FROM `+visitFrom+` WHERE v.tenant_id = $1 AND v.id = $2`, tenantID, id)
	v, err := scanVisit(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return v, nil
}

func (r *visitRepoPG) UpdateStatus(ctx context.Context, v *Visit, from Status) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE visits SET status = $3, doctor_id = $4, started_at = $5, completed_at = $6,
			cancel_reason = $7, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $8
		RETURNING updated_at`,
		v.TenantID, v.ID, string(v.Status), v.DoctorID, v.StartedAt, v.CompletedAt, v.CancelReason, string(from),
	).Scan(&v.UpdatedAt)
	return db.MapError(err)
}

func (r *visitRepoPG) Assign(ctx context.Context, tenantID, id, doctorID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE visits SET doctor_id = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status IN ($4, $5)`,
		tenantID, id, doctorID, string(StatusWaiting), string(StatusInProgress))
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *visitRepoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Visit, int, error) {
	where := sq.And{sq.Eq{"v.tenant_id": tenantID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"v.status": string(f.Status)})
	}
	if f.DoctorID != nil {
		where = append(where, sq.Eq{"v.doctor_id": *f.DoctorID})
	}
	if f.PatientID != nil {
		where = append(where, sq.Eq{"v.patient_id": *f.PatientID})
	}
	if f.Day != nil {
		start := f.Day.UTC().Truncate(24 * time.Hour)
		where = append(where, sq.GtOrEq{"v.check_in_at": start}, sq.Lt{"v.check_in_at": start.Add(24 * time.Hour)})
	}

	countSQL, countArgs, err := db.SQL.Select("COUNT(*)").From("visits v").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(visitColumns).From(visitFrom).Where(where).
		OrderBy(queueOrder, "v.check_in_at ASC", "v.id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		visits = append(visits, v)
	}
	return visits, total, rows.Err()
}

func (r *visitRepoPG) RecentByPatient(ctx context.Context, tenantID, patientID uuid.UUID, limit int) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+visitColumns+` FROM `+visitFrom+`
		WHERE v.tenant_id = $1 AND v.patient_id = $2
		ORDER BY v.check_in_at DESC
		LIMIT $3`, tenantID, patientID, limit)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (r *visitRepoPG) HasOpenVisit(ctx context.Context, tenantID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM visits
			WHERE tenant_id = $1 AND patient_id = $2 AND status IN ('WAITING', 'IN_PROGRESS')
		)`, tenantID, patientID,
	).Scan(&ok)
	return ok, db.MapError(err)
}

func (r *visitRepoPG) CountByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM visits WHERE tenant_id = $1 AND patient_id = $2`, tenantID, patientID,
	).Scan(&n)
	return n, db.MapError(err)
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var (
		v                Visit
		status, priority string
	)
	err := row.Scan(&v.ID, &v.TenantID, &v.PatientID, &v.VisitNumber, &v.DoctorID, &status, &priority,
		&v.ChiefComplaint, &v.Department, &v.CheckInAt, &v.StartedAt, &v.CompletedAt, &v.CancelReason,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &v.PatientName, &v.DoctorName)
	if err != nil {
		return nil, err
	}
	v.Status = Status(status)
	v.Priority = Priority(priority)
	return &v, nil
}
