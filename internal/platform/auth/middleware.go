package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type requireConfig struct {
	tenantParam string
	roles       []Role
}

// RequireOption narrows what Require accepts.
type RequireOption func(*requireConfig)

// WithTenantParam takes the required tenant id from the named path parameter.
func WithTenantParam(name string) RequireOption {
	return func(c *requireConfig) { c.tenantParam = name }
}

// WithRoles restricts the request to the given roles.
func WithRoles(roles ...Role) RequireOption {
	return func(c *requireConfig) { c.roles = append(c.roles, roles...) }
}

// Require authorizes every request before next runs. Rejections are written
// directly as {"success": false, "error": msg}; lookup failures are returned
// to the HTTP error handler, which renders a generic 500.
func (a *Authorizer) Require(opts ...RequireOption) echo.MiddlewareFunc {
	cfg := requireConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			policy := Policy{Roles: cfg.roles}
			if cfg.tenantParam != "" {
				policy.TenantID = c.Param(cfg.tenantParam)
			}

			req := c.Request()
			decision, err := a.Authorize(req.Context(), req, policy)
			if err != nil {
				return fmt.Errorf("authorize request: %w", err)
			}
			if !decision.Authorized() {
				return c.JSON(decision.Rejection.Status, decision.Rejection.Body())
			}

			c.Set(EchoAccountKey, decision.Account)
			c.SetRequest(req.WithContext(ContextWithAccount(req.Context(), decision.Account)))
			return next(c)
		}
	}
}

// RequireRole narrows an already authorized request to the given roles.
// It must run after Require.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := AccountFromContext(c.Request().Context())
			if acct == nil {
				r := reject(MissingCredential)
				return c.JSON(r.Status, r.Body())
			}
			if !HasRole(acct.Role, roles) {
				r := reject(RoleMismatch)
				return c.JSON(r.Status, r.Body())
			}
			return next(c)
		}
	}
}

// Account returns the account resolved by Require for this request.
func Account(c echo.Context) *AccountContext {
	if acct, ok := c.Get(EchoAccountKey).(*AccountContext); ok {
		return acct
	}
	return AccountFromContext(c.Request().Context())
}

// SetSessionCookie writes the HttpOnly session cookie carrying token.
func SetSessionCookie(c echo.Context, name, token string, maxAge int, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c echo.Context, name string, secure bool) {
	SetSessionCookie(c, name, "", -1, secure)
}
