package tenant

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts on the authorized /tenants/:tenantId group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Get)
	g.GET("/specialties", h.Specialties)
	g.PUT("", h.Update, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Get(c echo.Context) error {
	acct := auth.Account(c)
	t, err := h.svc.Get(c.Request().Context(), acct.TenantUUID())
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := h.svc.Update(c.Request().Context(), auth.Account(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

func (h *Handler) Specialties(c echo.Context) error {
	acct := auth.Account(c)
	specialties, err := h.svc.Specialties(c.Request().Context(), acct.TenantUUID())
	if err != nil {
		return err
	}
	return response.OK(c, specialties)
}
