package account

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const accountColumns = `id, tenant_id, email, password_hash, name, role, specialty, phone, active,
	last_login_at, created_at, updated_at`

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO accounts (id, tenant_id, email, password_hash, name, role, specialty, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.TenantID, a.Email, a.PasswordHash, a.Name, string(a.Role), a.Specialty, a.Phone, a.Active,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.MapError(err)
}

func (r *accountRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return a, nil
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	a, err := scanAccount(row)
	if err != nil {
		return nil, db.MapError(err)
	}
	return a, nil
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE accounts SET name = $3, role = $4, specialty = $5, phone = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		a.TenantID, a.ID, a.Name, string(a.Role), a.Specialty, a.Phone,
	).Scan(&a.UpdatedAt)
	return db.MapError(err)
}

func (r *accountRepoPG) SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE accounts SET active = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, active)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return db.MapError(err)
}

func (r *accountRepoPG) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
	return db.MapError(err)
}

func (r *accountRepoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Account, int, error) {
	where := sq.And{sq.Eq{"tenant_id": tenantID}}
	if f.Role != "" {
		where = append(where, sq.Eq{"role": string(f.Role)})
	}
	if f.Active != nil {
		where = append(where, sq.Eq{"active": *f.Active})
	}
	if f.Specialty != "" {
		where = append(where, sq.ILike{"specialty": f.Specialty})
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		where = append(where, sq.Or{sq.ILike{"name": like}, sq.ILike{"email": like}})
	}

	countSQL, countArgs, err := db.SQL.Select("COUNT(*)").From("accounts").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(accountColumns).From("accounts").Where(where).OrderBy("name", "id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

func (r *accountRepoPG) LockAdmins(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('admins:' || $1::text, 0))`, tenantID.String())
	return db.MapError(err)
}

func (r *accountRepoPG) CountActiveAdmins(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE tenant_id = $1 AND role = 'ADMIN' AND active`, tenantID,
	).Scan(&n)
	return n, db.MapError(err)
}

func (r *accountRepoPG) IsActiveDoctor(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE tenant_id = $1 AND id = $2 AND role = 'DOCTOR' AND active
		)`, tenantID, id,
	).Scan(&ok)
	return ok, db.MapError(err)
}

// LookupAccount resolves an account with its tenant for the request authorizer.
func (r *accountRepoPG) LookupAccount(ctx context.Context, id uuid.UUID) (*auth.AccountRecord, error) {
	var (
		rec  auth.AccountRecord
		role string
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT a.id, a.tenant_id, a.role, a.email, a.name, a.active,
		       t.id, t.name, t.email, t.active
		FROM accounts a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.id = $1`, id,
	).Scan(&rec.ID, &rec.TenantID, &role, &rec.Email, &rec.Name, &rec.Active,
		&rec.Tenant.ID, &rec.Tenant.Name, &rec.Tenant.Email, &rec.Tenant.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Role = auth.Role(role)
	return &rec, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a    Account
		role string
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.PasswordHash, &a.Name, &role, &a.Specialty, &a.Phone,
		&a.Active, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	return &a, nil
}
