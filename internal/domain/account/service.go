package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opd/opd/internal/domain/tenant"
	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/internal/platform/ratelimit"
	"github.com/opd/opd/pkg/pagination"
)

const (
	DefaultLoginMaxAttempts = 5
	DefaultLoginWindow      = 15 * time.Minute
)

var errBadCredentials = apperr.Unauthorized("invalid email or password")

// TokenIssuer is satisfied by *auth.Verifier.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// TenantCreator is satisfied by *tenant.Service.
type TenantCreator interface {
	Create(ctx context.Context, t *tenant.Tenant) error
}

type Config struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

type Service struct {
	repo    Repository
	tenants TenantCreator
	tx      db.Transactor
	audit   audit.Recorder
	tokens  TokenIssuer
	limiter ratelimit.Limiter
	logger  zerolog.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(repo Repository, tenants TenantCreator, tx db.Transactor, rec audit.Recorder,
	tokens TokenIssuer, limiter ratelimit.Limiter, logger zerolog.Logger, cfg Config) *Service {
	if cfg.LoginMaxAttempts <= 0 {
		cfg.LoginMaxAttempts = DefaultLoginMaxAttempts
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = DefaultLoginWindow
	}
	return &Service{
		repo:    repo,
		tenants: tenants,
		tx:      tx,
		audit:   rec,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With().Str("component", "account").Logger(),
		cfg:     cfg,
		now:     time.Now,
	}
}

// -- Sessions --

// Register creates a hospital with its first admin and signs the admin in.
// Nothing is persisted unless every step succeeds.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var session *Session
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t := &tenant.Tenant{
			Name:    req.HospitalName,
			Email:   req.HospitalEmail,
			Phone:   optional(req.HospitalPhone),
			Address: optional(req.HospitalAddress),
		}
		if err := s.tenants.Create(ctx, t); err != nil {
			return err
		}

		admin := &Account{
			TenantID: t.ID,
			Email:    req.AdminEmail,
			Name:     req.AdminName,
			Role:     auth.RoleAdmin,
			Phone:    optional(req.AdminPhone),
		}
		if err := s.insert(ctx, admin, req.AdminPassword); err != nil {
			return err
		}

		adminID := admin.ID
		if err := s.audit.Record(ctx, &audit.Entry{
			TenantID:   t.ID,
			AccountID:  &adminID,
			Action:     audit.ActionRegister,
			EntityType: audit.EntityTenant,
			EntityID:   t.ID.String(),
			Details:    map[string]interface{}{"hospital_name": t.Name, "admin_email": admin.Email},
		}); err != nil {
			return err
		}

		var err error
		session, err = s.issue(&auth.AccountRecord{
			ID:       admin.ID,
			TenantID: t.ID,
			Role:     admin.Role,
			Email:    admin.Email,
			Name:     admin.Name,
			Active:   true,
			Tenant:   auth.TenantRecord{ID: t.ID, Name: t.Name, Email: t.Email, Active: true},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Login verifies credentials and opens a session. Attempts are counted per
// email and client IP; a successful login clears the counter.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip string) (*Session, error) {
	email := tenant.NormalizeEmail(req.Email)
	key := "login:" + email + ":" + ip

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, key, s.cfg.LoginMaxAttempts, s.cfg.LoginWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login throttle unavailable")
		} else if !d.Allowed {
			return nil, apperr.TooManyRequests("too many login attempts, try again later", d.RetryAfter(s.now()))
		}
	}

	a, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		// Spend the same bcrypt time as a real check so unknown emails
		// are not distinguishable by latency.
		auth.CheckPassword(dummyHash(), req.Password)
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(a.PasswordHash, req.Password) {
		return nil, errBadCredentials
	}

	rec, err := s.repo.LookupAccount(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !rec.Active || !rec.Tenant.Active {
		return nil, apperr.Unauthorized("account is inactive")
	}

	session, err := s.issue(rec)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.TouchLogin(ctx, a.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		return s.audit.Record(ctx, audit.ByAccount(session.Account, audit.ActionLogin, audit.EntityAccount, a.ID.String()))
	})
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			s.logger.Warn().Err(err).Msg("reset login throttle")
		}
	}
	return session, nil
}

// Logout records the end of a session. The cookie is cleared by the handler.
func (s *Service) Logout(ctx context.Context, acct *auth.AccountContext) error {
	return s.audit.Record(ctx, audit.ByAccount(acct, audit.ActionLogout, audit.EntityAccount, acct.ID))
}

func (s *Service) ChangePassword(ctx context.Context, acct *auth.AccountContext, req ChangePasswordRequest) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.Get(ctx, acct, acct.AccountUUID())
		if err != nil {
			return err
		}
		if !auth.CheckPassword(a.PasswordHash, req.CurrentPassword) {
			return apperr.Invalid("current password is incorrect")
		}
		if req.NewPassword == req.CurrentPassword {
			return apperr.Invalid("new password must differ from the current password")
		}
		hash, err := hashPassword(req.NewPassword)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePassword(ctx, a.ID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return s.audit.Record(ctx, audit.ByAccount(acct, audit.ActionPasswordChange, audit.EntityAccount, a.ID.String()))
	})
}

func (s *Service) issue(rec *auth.AccountRecord) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(auth.Identity{
		AccountID: rec.ID.String(),
		TenantID:  rec.TenantID.String(),
		Role:      rec.Role,
		Email:     rec.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Account: auth.NewAccountContext(rec)}, nil
}

// -- Team --

func (s *Service) List(ctx context.Context, acct *auth.AccountContext, f ListFilter, p pagination.Params) ([]*Account, int, error) {
	accounts, total, err := s.repo.List(ctx, acct.TenantUUID(), f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list team: %w", err)
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	return accounts, total, nil
}

func (s *Service) Get(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, acct.TenantUUID(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("team member")
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *Service) Create(ctx context.Context, acct *auth.AccountContext, req CreateRequest) (*Account, error) {
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, errInvalidRole
	}
	a := &Account{
		TenantID:  acct.TenantUUID(),
		Email:     req.Email,
		Name:      req.Name,
		Role:      role,
		Specialty: optional(req.Specialty),
		Phone:     optional(req.Phone),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.insert(ctx, a, req.Password); err != nil {
			return err
		}
		entry := audit.ByAccount(acct, audit.ActionCreate, audit.EntityAccount, a.ID.String())
		entry.Details = map[string]interface{}{"email": a.Email, "role": string(a.Role)}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, req UpdateRequest) (*Account, error) {
	var out *Account
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.Get(ctx, acct, id)
		if err != nil {
			return err
		}

		changed := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Invalid("name must not be empty")
			}
			if name != a.Name {
				a.Name = name
				changed["name"] = name
			}
		}
		if req.Role != nil {
			role, err := auth.ParseRole(*req.Role)
			if err != nil {
				return errInvalidRole
			}
			if role != a.Role {
				if a.Role == auth.RoleAdmin && a.Active {
					if err := s.ensureOtherAdmin(ctx, a.TenantID); errors.Is(err, errLastAdmin) {
						return apperr.Conflict("cannot demote the last active admin")
					} else if err != nil {
						return err
					}
				}
				changed["role"] = map[string]interface{}{"from": string(a.Role), "to": string(role)}
				a.Role = role
			}
		}
		if req.Specialty != nil {
			a.Specialty = optional(*req.Specialty)
			changed["specialty"] = a.Specialty
		}
		if req.Phone != nil {
			a.Phone = optional(*req.Phone)
			changed["phone"] = a.Phone
		}
		if len(changed) == 0 {
			out = a
			return nil
		}

		if err := s.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		entry := audit.ByAccount(acct, audit.ActionUpdate, audit.EntityAccount, a.ID.String())
		entry.Details = changed
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive deactivates or reactivates a team member. Deactivation takes
// effect on the member's next request.
func (s *Service) SetActive(ctx context.Context, acct *auth.AccountContext, id uuid.UUID, active bool) (*Account, error) {
	if !active && id == acct.AccountUUID() {
		return nil, apperr.Invalid("you cannot deactivate your own account")
	}

	var out *Account
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.Get(ctx, acct, id)
		if err != nil {
			return err
		}
		if a.Active == active {
			out = a
			return nil
		}
		if !active && a.Role == auth.RoleAdmin {
			if err := s.ensureOtherAdmin(ctx, a.TenantID); errors.Is(err, errLastAdmin) {
				return apperr.Conflict("cannot deactivate the last active admin")
			} else if err != nil {
				return err
			}
		}
		if err := s.repo.SetActive(ctx, a.TenantID, a.ID, active); err != nil {
			return fmt.Errorf("set account active: %w", err)
		}
		a.Active = active

		action := audit.ActionDeactivate
		if active {
			action = audit.ActionActivate
		}
		if err := s.audit.Record(ctx, audit.ByAccount(acct, action, audit.EntityAccount, a.ID.String())); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -- helpers --

var errInvalidRole = apperr.Invalid("role must be one of ADMIN, DOCTOR, NURSE, RECEPTIONIST")

var errLastAdmin = errors.New("no other active admin")

// ensureOtherAdmin fails when removing one active admin would leave none.
// It must run inside a transaction so the admin lock holds until commit.
func (s *Service) ensureOtherAdmin(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.repo.LockAdmins(ctx, tenantID); err != nil {
		return fmt.Errorf("lock admins: %w", err)
	}
	n, err := s.repo.CountActiveAdmins(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n <= 1 {
		return errLastAdmin
	}
	return nil
}

// insert hashes password and stores a as an active account.
func (s *Service) insert(ctx context.Context, a *Account, password string) error {
	a.Email = tenant.NormalizeEmail(a.Email)
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return apperr.Invalid("name is required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.Active = true

	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return apperr.Wrap(apperr.KindConflict, "email already registered", err)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func hashPassword(pw string) (string, error) {
	hash, err := auth.HashPassword(pw)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return "", apperr.Invalid("password must be at least %d characters", auth.MinPasswordLength)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = auth.HashPassword("opd-timing-equalizer")
	})
	return dummy
}
