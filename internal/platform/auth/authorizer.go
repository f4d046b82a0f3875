package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultCookieName is the session cookie consulted when no bearer header is sent.
const DefaultCookieName = "auth_token"

// ErrAccountNotFound is returned by an AccountLookup when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// RejectionKind classifies an authorization failure.
type RejectionKind int

const (
	MissingCredential RejectionKind = iota + 1
	InvalidCredential
	StaleIdentity
	TenantMismatch
	RoleMismatch
)

func (k RejectionKind) Status() int {
	switch k {
	case MissingCredential, InvalidCredential, StaleIdentity:
		return http.StatusUnauthorized
	case TenantMismatch, RoleMismatch:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (k RejectionKind) Message() string {
	switch k {
	case MissingCredential:
		return "authentication required"
	case InvalidCredential:
		return "invalid or expired token"
	case StaleIdentity:
		return "user not found or inactive"
	case TenantMismatch:
		return "access denied to this tenant"
	case RoleMismatch:
		return "insufficient permissions"
	}
	return "internal server error"
}

func (k RejectionKind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case InvalidCredential:
		return "invalid_credential"
	case StaleIdentity:
		return "stale_identity"
	case TenantMismatch:
		return "tenant_mismatch"
	case RoleMismatch:
		return "role_mismatch"
	}
	return fmt.Sprintf("rejection(%d)", int(k))
}

// ErrorBody is the JSON shape of every failed API response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Rejection is a terminal authorization outcome for a request.
type Rejection struct {
	Kind    RejectionKind
	Status  int
	Message string
}

func reject(kind RejectionKind) *Rejection {
	return &Rejection{Kind: kind, Status: kind.Status(), Message: kind.Message()}
}

func (r *Rejection) Body() ErrorBody {
	return ErrorBody{Success: false, Error: r.Message}
}

type TenantInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AccountContext is the authorized identity handed to route handlers.
type AccountContext struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Role     Role       `json:"role"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Tenant   TenantInfo `json:"tenant"`
}

// AccountUUID parses the account id; authorized contexts always carry a valid one.
func (a *AccountContext) AccountUUID() uuid.UUID {
	id, _ := uuid.Parse(a.ID)
	return id
}

// TenantUUID parses the tenant id.
func (a *AccountContext) TenantUUID() uuid.UUID {
	id, _ := uuid.Parse(a.TenantID)
	return id
}

type TenantRecord struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Active bool
}

// AccountRecord is the account row joined with its tenant.
type AccountRecord struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Role     Role
	Email    string
	Name     string
	Active   bool
	Tenant   TenantRecord
}

// AccountLookup resolves an account by id together with its tenant. It
// returns ErrAccountNotFound when no row matches.
type AccountLookup interface {
	LookupAccount(ctx context.Context, id uuid.UUID) (*AccountRecord, error)
}

// TokenVerifier is satisfied by *Verifier.
type TokenVerifier interface {
	Verify(token string) (*Identity, bool)
}

// Policy holds the optional constraints of one authorization decision.
type Policy struct {
	// TenantID, when set, must equal the account's tenant.
	TenantID string
	// Roles, when non-empty, must contain the account's role.
	Roles []Role
}

// Decision is either an accepted account or a rejection.
type Decision struct {
	Account   *AccountContext
	Rejection *Rejection
}

func (d Decision) Authorized() bool { return d.Account != nil && d.Rejection == nil }

type Authorizer struct {
	verifier   TokenVerifier
	accounts   AccountLookup
	cookieName string
}

func NewAuthorizer(verifier TokenVerifier, accounts AccountLookup, cookieName string) *Authorizer {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Authorizer{verifier: verifier, accounts: accounts, cookieName: cookieName}
}

// CookieName returns the session cookie name.
func (a *Authorizer) CookieName() string { return a.cookieName }

// Authorize evaluates r against p. Expected failures come back as a
// Rejection; only data-store failures are returned as an error.
func (a *Authorizer) Authorize(ctx context.Context, r *http.Request, p Policy) (Decision, error) {
	token, ok := ExtractToken(r, a.cookieName)
	if !ok {
		return Decision{Rejection: reject(MissingCredential)}, nil
	}

	id, ok := a.verifier.Verify(token)
	if !ok {
		return Decision{Rejection: reject(InvalidCredential)}, nil
	}

	accountID, err := uuid.Parse(id.AccountID)
	if err != nil {
		return Decision{Rejection: reject(StaleIdentity)}, nil
	}
	rec, err := a.accounts.LookupAccount(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return Decision{Rejection: reject(StaleIdentity)}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("lookup account: %w", err)
	}
	if rec == nil || !rec.Active || !rec.Tenant.Active {
		return Decision{Rejection: reject(StaleIdentity)}, nil
	}

	if p.TenantID != "" && !strings.EqualFold(rec.TenantID.String(), p.TenantID) {
		return Decision{Rejection: reject(TenantMismatch)}, nil
	}
	if len(p.Roles) > 0 && !HasRole(rec.Role, p.Roles) {
		return Decision{Rejection: reject(RoleMismatch)}, nil
	}

	return Decision{Account: NewAccountContext(rec)}, nil
}

// NewAccountContext projects an account record onto the context handed to
// handlers and returned by login.
func NewAccountContext(rec *AccountRecord) *AccountContext {
	return &AccountContext{
		ID:       rec.ID.String(),
		TenantID: rec.TenantID.String(),
		Role:     rec.Role,
		Email:    rec.Email,
		Name:     rec.Name,
		Tenant: TenantInfo{
			ID:    rec.Tenant.ID.String(),
			Name:  rec.Tenant.Name,
			Email: rec.Tenant.Email,
		},
	}
}

// ExtractToken returns the bearer token from the Authorization header, or
// failing that from the named cookie.
func ExtractToken(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok, true
			}
		}
	}
	if cookieName == "" {
		return "", false
	}
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return "", false
}
