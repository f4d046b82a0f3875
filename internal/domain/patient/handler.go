package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
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
	frontDesk := auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleNurse)

	g.POST("/patients", h.Create, frontDesk)
	g.GET("/patients", h.List)
	g.GET("/patients/:id", h.Get)
	g.PUT("/patients/:id", h.Update, frontDesk)
	g.DELETE("/patients/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	reg, err := h.svc.Register(c.Request().Context(), auth.Account(c), req)
	if err != nil {
		return err
	}
	return response.Created(c, reg)
}

func (h *Handler) List(c echo.Context) error {
	f := ListFilter{Query: c.QueryParam("q")}
	if g := c.QueryParam("gender"); g != "" {
		gender, err := ParseGender(g)
		if err != nil {
			return errInvalidGender
		}
		f.Gender = gender
	}

	p := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), auth.Account(c), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Detail(c.Request().Context(), auth.Account(c), id)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) Update(c echo.Context) error {
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
	p, err := h.svc.Update(c.Request().Context(), auth.Account(c), id, req)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), auth.Account(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
