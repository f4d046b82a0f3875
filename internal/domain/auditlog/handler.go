package auditlog

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts on the authorized /tenants/:tenantId group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit-logs", h.List, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		Action:     audit.Action(strings.ToUpper(c.QueryParam("action"))),
	}
	if s := c.QueryParam("account_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid account_id")
		}
		f.AccountID = &id
	}
	var err error
	if f.From, err = parseBound(c.QueryParam("from"), false); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be a date or RFC 3339 timestamp")
	}
	if f.To, err = parseBound(c.QueryParam("to"), true); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be a date or RFC 3339 timestamp")
	}

	p := pagination.FromContext(c)
	records, total, err := h.svc.List(c.Request().Context(), auth.Account(c), f, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p))
}

// parseBound accepts a timestamp or a UTC date. A date used as an upper
// bound covers the whole day.
func parseBound(s string, upper bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24 * time.Hour)
	}
	return &t, nil
}
