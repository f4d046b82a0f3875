package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/db"
)

type tenantRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &tenantRepoPG{pool: pool}
}

func (r *tenantRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const tenantColumns = `id, name, email, phone, address, active, created_at, updated_at`

func (r *tenantRepoPG) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tenants (id, name, email, phone, address, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Email, t.Phone, t.Address, t.Active,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return db.MapError(err)
}

func (r *tenantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return t, nil
}

func (r *tenantRepoPG) Update(ctx context.Context, t *Tenant) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE tenants SET name = $2, email = $3, phone = $4, address = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Name, t.Email, t.Phone, t.Address,
	).Scan(&t.UpdatedAt)
	return db.MapError(err)
}

func (r *tenantRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE tenants SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *tenantRepoPG) Specialties(ctx context.Context, id uuid.UUID) ([]string, error) {
	query, args, err := db.SQL.
		Select("DISTINCT specialty").
		From("accounts").
		Where("tenant_id = ?", id).
		Where("role = 'DOCTOR'").
		Where("active").
		Where("specialty IS NOT NULL AND specialty <> ''").
		OrderBy("specialty").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	specialties, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.MapError(err)
	}
	return specialties, nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Address, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
