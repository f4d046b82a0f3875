package account

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
	"github.com/opd/opd/pkg/response"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	svc    *Service
	authz  *auth.Authorizer
	cookie CookieConfig
}

func NewHandler(svc *Service, authz *auth.Authorizer, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = authz.CookieName()
	}
	return &Handler{svc: svc, authz: authz, cookie: cookie}
}

// RegisterAuthRoutes mounts the session endpoints on /api/v1/auth.
func (h *Handler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)

	authed := h.authz.Require()
	g.GET("/me", h.Me, authed)
	g.PUT("/password", h.ChangePassword, authed)
}

// RegisterTeamRoutes mounts on the authorized /tenants/:tenantId group.
func (h *Handler) RegisterTeamRoutes(g *echo.Group) {
	adminOnly := auth.RequireRole(auth.RoleAdmin)

	g.GET("/team", h.ListTeam)
	g.POST("/team", h.CreateMember, adminOnly)
	g.GET("/team/:id", h.GetMember, adminOnly)
	g.PUT("/team/:id", h.UpdateMember, adminOnly)
	g.POST("/team/:id/deactivate", h.DeactivateMember, adminOnly)
	g.POST("/team/:id/activate", h.ActivateMember, adminOnly)
}

// -- Sessions --

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	session, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.setSession(c, session)
	return response.Created(c, session)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.Request().Context(), req, c.RealIP())
	if err != nil {
		return err
	}
	h.setSession(c, session)
	return response.OK(c, session)
}

// Logout always clears the cookie. When the request still carries a valid
// session the logout is also audited.
func (h *Handler) Logout(c echo.Context) error {
	req := c.Request()
	decision, err := h.authz.Authorize(req.Context(), req, auth.Policy{})
	if err != nil {
		h.svc.logger.Warn().Err(err).Msg("resolve account on logout")
	} else if decision.Authorized() {
		if err := h.svc.Logout(req.Context(), decision.Account); err != nil {
			h.svc.logger.Warn().Err(err).Str("account_id", decision.Account.ID).Msg("audit logout")
		}
	}
	auth.ClearSessionCookie(c, h.cookie.Name, h.cookie.Secure)
	return response.Message(c, "logged out")
}

func (h *Handler) Me(c echo.Context) error {
	return response.OK(c, auth.Account(c))
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), auth.Account(c), req); err != nil {
		return err
	}
	return response.Message(c, "password updated")
}

func (h *Handler) setSession(c echo.Context, s *Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	auth.SetSessionCookie(c, h.cookie.Name, s.Token, maxAge, h.cookie.Secure)
}

// -- Team --

func (h *Handler) ListTeam(c echo.Context) error {
	f := ListFilter{
		Specialty: c.QueryParam("specialty"),
		Query:     c.QueryParam("q"),
	}
	if r := c.QueryParam("role"); r != "" {
		role, err := auth.ParseRole(r)
		if err != nil {
			return errInvalidRole
		}
		f.Role = role
	}
	if a := c.QueryParam("active"); a != "" {
		active, err := strconv.ParseBool(a)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be true or false")
		}
		f.Active = &active
	}

	p := pagination.FromContext(c)
	accounts, total, err := h.svc.List(c.Request().Context(), auth.Account(c), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(accounts, total, p))
}

func (h *Handler) CreateMember(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), auth.Account(c), req)
	if err != nil {
		return err
	}
	return response.Created(c, a)
}

func (h *Handler) GetMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), auth.Account(c), id)
	if err != nil {
		return err
	}
	return response.OK(c, a)
}

func (h *Handler) UpdateMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Update(c.Request().Context(), auth.Account(c), id, req)
	if err != nil {
		return err
	}
	return response.OK(c, a)
}

func (h *Handler) DeactivateMember(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *Handler) ActivateMember(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *Handler) setActive(c echo.Context, active bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.SetActive(c.Request().Context(), auth.Account(c), id, active)
	if err != nil {
		return err
	}
	return response.OK(c, a)
}
