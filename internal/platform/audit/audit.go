// Package audit records who changed what in a tenant, in the audit_logs table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
)

type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionStatusChange   Action = "STATUS_CHANGE"
	ActionAssign         Action = "ASSIGN"
	ActionRegister       Action = "REGISTER"
	ActionDeactivate     Action = "DEACTIVATE"
	ActionActivate       Action = "ACTIVATE"
	ActionPasswordChange Action = "PASSWORD_CHANGE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout,
		ActionStatusChange, ActionAssign, ActionRegister, ActionDeactivate,
		ActionActivate, ActionPasswordChange:
		return true
	}
	return false
}

// Entity types written to audit_logs.entity_type.
const (
	EntityTenant  = "tenant"
	EntityAccount = "account"
	EntityPatient = "patient"
	EntityVisit   = "visit"
	EntityNote    = "clinical_note"
	EntityVitals  = "vitals"
)

// Entry is one audit row. AccountID is nil for actions taken by the CLI.
type Entry struct {
	ID         uuid.UUID              `json:"id"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	AccountID  *uuid.UUID             `json:"account_id,omitempty"`
	Action     Action                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ByAccount starts an entry attributed to acct in acct's tenant.
func ByAccount(acct *auth.AccountContext, action Action, entityType, entityID string) *Entry {
	e := &Entry{
		TenantID:   acct.TenantUUID(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if id := acct.AccountUUID(); id != uuid.Nil {
		e.AccountID = &id
	}
	return e
}

// Recorder persists audit entries. Implementations must join the
// transaction bound to ctx so the row commits with the change it describes.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// RequestMeta is the per-request origin copied onto every entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	return m
}

// Logger writes entries to PostgreSQL.
type Logger struct {
	pool db.Querier
	now  func() time.Time
}

func NewLogger(pool db.Querier) *Logger {
	return &Logger{pool: pool, now: time.Now}
}

func (l *Logger) Record(ctx context.Context, e *Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("audit: unknown action %q", e.Action)
	}
	if e.TenantID == uuid.Nil {
		return fmt.Errorf("audit: tenant is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	meta := MetaFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	if e.RequestID == "" {
		e.RequestID = meta.RequestID
	}

	var details []byte
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
		details = b
	}

	_, err := db.Conn(ctx, l.pool).Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, account_id, action, entity_type, entity_id,
			details, ip_address, user_agent, request_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.TenantID, e.AccountID, string(e.Action), e.EntityType, nullable(e.EntityID),
		details, nullable(e.IPAddress), nullable(e.UserAgent), nullable(e.RequestID), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
