package auditlog

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

const recordColumns = `l.id, l.tenant_id, l.account_id, l.action, l.entity_type, COALESCE(l.entity_id, ''),
	l.details, COALESCE(l.ip_address, ''), COALESCE(l.user_agent, ''), COALESCE(l.request_id, ''),
	l.created_at, COALESCE(a.name, '')`

type auditRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *auditRepoPG) List(ctx context.Context, tenantID uuid.UUID, f Filter, p pagination.Params) ([]*Record, int, error) {
	where := sq.And{sq.Eq{"l.tenant_id": tenantID}}
	if f.EntityType != "" {
		where = append(where, sq.Eq{"l.entity_type": f.EntityType})
	}
	if f.EntityID != "" {
		where = append(where, sq.Eq{"l.entity_id": f.EntityID})
	}
	if f.Action != "" {
		where = append(where, sq.Eq{"l.action": string(f.Action)})
	}
	if f.AccountID != nil {
		where = append(where, sq.Eq{"l.account_id": *f.AccountID})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"l.created_at": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.Lt{"l.created_at": *f.To})
	}

	countSQL, countArgs, err := db.SQL.Select("COUNT(*)").From("audit_logs l").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	query, args, err := p.Apply(db.SQL.Select(recordColumns).
		From("audit_logs l").
		LeftJoin("accounts a ON a.id = l.account_id").
		Where(where).
		OrderBy("l.created_at DESC", "l.id")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		action  string
		details []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.AccountID, &action, &rec.EntityType, &rec.EntityID,
		&details, &rec.IPAddress, &rec.UserAgent, &rec.RequestID, &rec.CreatedAt, &rec.AccountName)
	if err != nil {
		return nil, err
	}
	rec.Action = audit.Action(action)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
