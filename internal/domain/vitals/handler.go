package vitals

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
	readers := auth.RequireRole(auth.ClinicalRoles...)

	g.POST("/visits/:id/vitals", h.Record, auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	g.GET("/visits/:id/vitals", h.ListForVisit, readers)
	g.GET("/patients/:id/vitals", h.ListForPatient, readers)
}

func (h *Handler) Record(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	v, err := h.svc.Record(c.Request().Context(), auth.Account(c), visitID, req)
	if err != nil {
		return err
	}
	return response.Created(c, v)
}

func (h *Handler) ListForVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	list, err := h.svc.ListForVisit(c.Request().Context(), auth.Account(c), visitID)
	if err != nil {
		return err
	}
	return response.OK(c, list)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p := pagination.FromContext(c)
	list, total, err := h.svc.ListForPatient(c.Request().Context(), auth.Account(c), patientID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, p))
}
