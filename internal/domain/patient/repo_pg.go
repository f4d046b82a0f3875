package patient

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

// MRNConstraint is the per-tenant unique constraint on medical record numbers.
const MRNConstraint = "patients_tenant_mrn_key"

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientColumns = `id, tenant_id, mrn, first_name, last_name, date_of_birth, gender, phone, email,
	address, blood_group, allergies, emergency_contact_name, emergency_contact_phone,
	created_by, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, tenant_id, mrn, first_name, last_name, date_of_birth, gender, phone,
			email, address, blood_group, allergies, emergency_contact_name, emergency_contact_phone,
			created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, string(p.Gender), p.Phone,
		p.Email, p.Address, p.BloodGroup, p.Allergies, p.EmergencyContactName, p.EmergencyContactPhone,
		p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.MapError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name = $3, last_name = $4, date_of_birth = $5, gender = $6,
			phone = $7, email = $8, address = $9, blood_group = $10, allergies = $11,
			emergency_contact_name = $12, emergency_contact_phone = $13, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		p.TenantID, p.ID, p.FirstName, p.LastName, p.DateOfBirth, string(p.Gender),
		p.Phone, p.Email, p.Address, p.BloodGroup, p.Allergies,
		p.EmergencyContactName, p.EmergencyContactPhone,
	).Scan(&p.UpdatedAt)
	return db.MapError(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Patient, int, error) {
	where := sq.And{sq.Eq{"tenant_id": tenantID}}
	if f.Gender != "" {
		where = append(where, sq.Eq{"gender": string(f.Gender)})
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		where = append(where, sq.Or{
			sq.ILike{"first_name": like},
			sq.ILike{"last_name": like},
			sq.Expr("(first_name || ' ' || last_name) ILIKE ?", like),
			sq.ILike{"mrn": like},
			sq.Like{"phone": like},
		})
	}

	countSQL, countArgs, err := db.SQL.Select("COUNT(*)").From("patients").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(patientColumns).From("patients").Where(where).
		OrderBy("created_at DESC", "id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		pt, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, pt)
	}
	return patients, total, rows.Err()
}

func (r *patientRepoPG) PatientExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE tenant_id = $1 AND id = $2)`, tenantID, id,
	).Scan(&ok)
	return ok, db.MapError(err)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p      Patient
		gender string
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &gender,
		&p.Phone, &p.Email, &p.Address, &p.BloodGroup, &p.Allergies, &p.EmergencyContactName,
		&p.EmergencyContactPhone, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Gender = Gender(gender)
	return &p, nil
}
