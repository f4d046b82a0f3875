package note

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

type noteRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const noteColumns = `n.id, n.tenant_id, n.visit_id, n.patient_id, n.author_id, n.type, n.content,
	n.diagnosis, n.prescription, n.created_at, n.updated_at, a.name, a.role`

const noteFrom = `clinical_notes n JOIN accounts a ON a.id = n.author_id`

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (id, tenant_id, visit_id, patient_id, author_id, type, content,
			diagnosis, prescription)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		n.ID, n.TenantID, n.VisitID, n.PatientID, n.AuthorID, string(n.Type), n.Content,
		n.Diagnosis, n.Prescription,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	return db.MapError(err)
}

func (r *noteRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Note, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteColumns+` FROM `+noteFrom+` WHERE n.tenant_id = $1 AND n.id = $2`, tenantID, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return n, nil
}

func (r *noteRepoPG) Update(ctx context.Context, n *Note) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical_notes SET type = $3, content = $4, diagnosis = $5, prescription = $6,
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		n.TenantID, n.ID, string(n.Type), n.Content, n.Diagnosis, n.Prescription,
	).Scan(&n.UpdatedAt)
	return db.MapError(err)
}

func (r *noteRepoPG) ListByVisit(ctx context.Context, tenantID, visitID uuid.UUID) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteColumns+` FROM `+noteFrom+`
		WHERE n.tenant_id = $1 AND n.visit_id = $2
		ORDER BY n.created_at, n.id`, tenantID, visitID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collectNotes(rows)
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, p pagination.Params) ([]*Note, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_notes WHERE tenant_id = $1 AND patient_id = $2`, tenantID, patientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(noteColumns).From(noteFrom).
		Where("n.tenant_id = ? AND n.patient_id = ?", tenantID, patientID).
		OrderBy("n.created_at DESC", "n.id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	notes, err := collectNotes(rows)
	return notes, total, err
}

func collectNotes(rows pgx.Rows) ([]*Note, error) {
	defer rows.Close()
	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanNote(row pgx.Row) (*Note, error) {
	var (
		n   Note
		typ string
	)
	err := row.Scan(&n.ID, &n.TenantID, &n.VisitID, &n.PatientID, &n.AuthorID, &typ, &n.Content,
		&n.Diagnosis, &n.Prescription, &n.CreatedAt, &n.UpdatedAt, &n.AuthorName, &n.AuthorRole)
	if err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	return &n, nil
}
