package note

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
	writers := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse)
	readers := auth.RequireRole(auth.ClinicalRoles...)

	g.POST("/visits/:id/notes", h.Create, writers)
	g.GET("/visits/:id/notes", h.ListForVisit, readers)
	g.PUT("/notes/:id", h.Update, writers)
	g.GET("/patients/:id/notes", h.ListForPatient, readers)
}

func (h *Handler) Create(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	n, err := h.svc.Create(c.Request().Context(), auth.Account(c), visitID, req)
	if err != nil {
		return err
	}
	return response.Created(c, n)
}

func (h *Handler) ListForVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	notes, err := h.svc.ListForVisit(c.Request().Context(), auth.Account(c), visitID)
	if err != nil {
		return err
	}
	return response.OK(c, notes)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p := pagination.FromContext(c)
	notes, total, err := h.svc.ListForPatient(c.Request().Context(), auth.Account(c), patientID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(notes, total, p))
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
	n, err := h.svc.Update(c.Request().Context(), auth.Account(c), id, req)
	if err != nil {
		return err
	}
	return response.OK(c, n)
}
