package auditlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/middleware"
	"github.com/opd/opd/pkg/pagination"
)

type fakeRepo struct {
	records []*Record
	gotF    Filter
	gotP    pagination.Params
	gotTen  uuid.UUID
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, filter Filter, p pagination.Params) ([]*Record, int, error) {
	f.gotTen, f.gotF, f.gotP = tenantID, filter, p
	var out []*Record
	for _, r := range f.records {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func adminOf(tenant uuid.UUID) *auth.AccountContext {
	return &auth.AccountContext{ID: uuid.NewString(), TenantID: tenant.String(), Role: auth.RoleAdmin}
}

func TestService_List(t *testing.T) {
	tenant := uuid.New()
	repo := &fakeRepo{records: []*Record{
		{Entry: audit.Entry{ID: uuid.New(), TenantID: tenant, Action: audit.ActionCreate, EntityType: audit.EntityPatient}},
		{Entry: audit.Entry{ID: uuid.New(), TenantID: uuid.New(), Action: audit.ActionCreate, EntityType: audit.EntityPatient}},
	}}
	svc := NewService(repo)

	records, total, err := svc.List(context.Background(), adminOf(tenant), Filter{}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(records) != 1 || repo.gotTen != tenant {
		t.Errorf("expected only the caller's tenant, got %d records", total)
	}
}

func TestService_List_EmptyIsNotNil(t *testing.T) {
	svc := NewService(&fakeRepo{})
	records, _, err := svc.List(context.Background(), adminOf(uuid.New()), Filter{}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if records == nil {
		t.Error("expected empty slice")
	}
}

func TestService_List_InvalidFilter(t *testing.T) {
	svc := NewService(&fakeRepo{})
	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	tests := []struct {
		name string
		f    Filter
	}{
		{"unknown action", Filter{Action: "EXPLODE"}},
		{"reversed range", Filter{From: &from, To: &to}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.List(context.Background(), adminOf(uuid.New()), tt.f, pagination.Params{Limit: 20})
			if status, _ := apperr.Status(err); status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d (%v)", status, err)
			}
		})
	}
}

func TestParseBound(t *testing.T) {
	from, err := parseBound("2026-03-14", false)
	if err != nil || !from.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected lower bound %v (%v)", from, err)
	}
	to, err := parseBound("2026-03-14", true)
	if err != nil || !to.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected a date upper bound to cover the whole day, got %v", to)
	}
	ts, err := parseBound("2026-03-14T10:30:00Z", true)
	if err != nil || ts.Hour() != 10 {
		t.Errorf("unexpected timestamp bound %v (%v)", ts, err)
	}
	if b, err := parseBound("", false); b != nil || err != nil {
		t.Error("expected empty bound to be nil")
	}
	if _, err := parseBound("yesterday", false); err == nil {
		t.Error("expected error")
	}
}

func newRouter(repo *fakeRepo, acct *auth.AccountContext) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(zerolog.Nop())
	g := e.Group("/tenants/:tenantId", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(auth.EchoAccountKey, acct)
			c.SetRequest(c.Request().WithContext(auth.ContextWithAccount(c.Request().Context(), acct)))
			return next(c)
		}
	})
	NewHandler(NewService(repo)).RegisterRoutes(g)
	return e
}

func TestHandler_List(t *testing.T) {
	tenant := uuid.New()
	accountID := uuid.New()
	repo := &fakeRepo{records: []*Record{
		{Entry: audit.Entry{ID: uuid.New(), TenantID: tenant, Action: audit.ActionLogin, EntityType: audit.EntityAccount}, AccountName: "Asha"},
	}}
	e := newRouter(repo, adminOf(tenant))

	target := "/tenants/" + tenant.String() + "/audit-logs?action=login&entity_type=account&account_id=" +
		accountID.String() + "&from=2026-03-01&to=2026-03-14&limit=5"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.gotF.Action != audit.ActionLogin || repo.gotF.EntityType != "account" ||
		repo.gotF.AccountID == nil || *repo.gotF.AccountID != accountID || repo.gotP.Limit != 5 {
		t.Errorf("filter not passed through: %+v", repo.gotF)
	}
	var resp struct {
		Success bool `json:"success"`
		Total   int  `json:"total"`
		Data    []struct {
			Action      string `json:"action"`
			AccountName string `json:"account_name"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Total != 1 || resp.Data[0].AccountName != "Asha" || resp.Data[0].Action != "LOGIN" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_List_BadQuery(t *testing.T) {
	tenant := uuid.New()
	e := newRouter(&fakeRepo{}, adminOf(tenant))

	for _, q := range []string{"account_id=nope", "from=soon", "to=later", "action=explode"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/"+tenant.String()+"/audit-logs?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHandler_List_AdminOnly(t *testing.T) {
	tenant := uuid.New()
	acct := adminOf(tenant)
	acct.Role = auth.RoleDoctor
	e := newRouter(&fakeRepo{}, acct)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/"+tenant.String()+"/audit-logs", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	var body auth.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Success {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
