package visit

import (
	"net/http"
	"time"

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

	g.POST("/visits", h.Create, frontDesk)
	g.GET("/visits", h.List)
	g.GET("/visits/:id", h.Get)
	g.PATCH("/visits/:id/status", h.UpdateStatus)
	g.PATCH("/visits/:id/assign", h.Assign, frontDesk)
}

func (h *Handler) Create(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	v, err := h.svc.Open(c.Request().Context(), auth.Account(c), patientID, req)
	if err != nil {
		return err
	}
	return response.Created(c, v)
}

func (h *Handler) List(c echo.Context) error {
	var f ListFilter
	if s := c.QueryParam("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return errInvalidStatus
		}
		f.Status = st
	}
	if s := c.QueryParam("doctor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	if s := c.QueryParam("patient_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if s := c.QueryParam("date"); s != "" {
		day, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		}
		f.Day = &day
	}

	p := pagination.FromContext(c)
	visits, total, err := h.svc.List(c.Request().Context(), auth.Account(c), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, p))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), auth.Account(c), id)
	if err != nil {
		return err
	}
	return response.OK(c, v)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	v, err := h.svc.UpdateStatus(c.Request().Context(), auth.Account(c), id, req)
	if err != nil {
		return err
	}
	return response.OK(c, v)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	v, err := h.svc.Assign(c.Request().Context(), auth.Account(c), id, req)
	if err != nil {
		return err
	}
	return response.OK(c, v)
}
