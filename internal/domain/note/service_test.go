package note

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

// -- Mocks --

type mockRepo struct {
	notes map[uuid.UUID]*Note
	clock time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		notes: make(map[uuid.UUID]*Note),
		clock: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepo) Create(_ context.Context, n *Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.clock = m.clock.Add(time.Minute)
	n.CreatedAt = m.clock
	n.UpdatedAt = m.clock
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Note, error) {
	n, ok := m.notes[id]
	if !ok || n.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, n *Note) error {
	if _, ok := m.notes[n.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *mockRepo) ListByVisit(_ context.Context, tenantID, visitID uuid.UUID) ([]*Note, error) {
	var out []*Note
	for _, n := range m.notes {
		if n.TenantID == tenantID && n.VisitID == visitID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, tenantID, patientID uuid.UUID, p pagination.Params) ([]*Note, int, error) {
	var out []*Note
	for _, n := range m.notes {
		if n.TenantID == tenantID && n.PatientID == patientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return out[p.Offset:end], total, nil
}

type fakeVisits struct {
	visits map[uuid.UUID]*visit.Visit
}

func (f *fakeVisits) Get(_ context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error) {
	v, ok := f.visits[id]
	if !ok || v.TenantID != acct.TenantUUID() {
		return nil, apperr.NotFound("visit")
	}
	return v, nil
}

func (f *fakeVisits) GetOpen(ctx context.Context, acct *auth.AccountContext, id uuid.UUID) (*visit.Visit, error) {
	v, err := f.Get(ctx, acct, id)
	if err != nil {
		return nil, err
	}
	if !v.Status.Open() {
		return nil, apperr.Conflict("visit is already completed or cancelled")
	}
	return v, nil
}

func (f *fakeVisits) PatientExists(_ context.Context, tenantID, id uuid.UUID) (bool, error) {
	for _, v := range f.visits {
		if v.TenantID == tenantID && v.PatientID == id {
			return true, nil
		}
	}
	return false, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeRecorder struct{ entries []*audit.Entry }

func (f *fakeRecorder) Record(_ context.Context, e *audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

// -- Fixtures --

type fixture struct {
	svc      *Service
	repo     *mockRepo
	visits   *fakeVisits
	rec      *fakeRecorder
	tenantID uuid.UUID
	visit    *visit.Visit
	doctor   *auth.AccountContext
	nurse    *auth.AccountContext
}

func newFixture() *fixture {
	tenantID := uuid.New()
	v := &visit.Visit{ID: uuid.New(), TenantID: tenantID, PatientID: uuid.New(), Status: visit.StatusInProgress}
	f := &fixture{
		repo:     newMockRepo(),
		visits:   &fakeVisits{visits: map[uuid.UUID]*visit.Visit{v.ID: v}},
		rec:      &fakeRecorder{},
		tenantID: tenantID,
		visit:    v,
		doctor:   &auth.AccountContext{ID: uuid.NewString(), TenantID: tenantID.String(), Role: auth.RoleDoctor, Name: "Dr. Rao"},
		nurse:    &auth.AccountContext{ID: uuid.NewString(), TenantID: tenantID.String(), Role: auth.RoleNurse, Name: "Nurse Joy"},
	}
	f.svc = NewService(f.repo, f.visits, f.visits, fakeTx{}, f.rec)
	return f
}

func (f *fixture) write(t *testing.T, acct *auth.AccountContext, req CreateRequest) *Note {
	t.Helper()
	n, err := f.svc.Create(context.Background(), acct, f.visit.ID, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.rec.entries = nil
	return n
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if got, msg := apperr.Status(err); got != status {
		t.Fatalf("expected %d, got %d (%s / %v)", status, got, msg, err)
	}
}

// -- Tests --

func TestService_Create(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(context.Background(), f.doctor, f.visit.ID, CreateRequest{
		Type: "consultation", Content: " Presents with fever. ", Diagnosis: "Viral fever",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Type != TypeConsultation || n.Content != "Presents with fever." {
		t.Errorf("unexpected note %+v", n)
	}
	if n.PatientID != f.visit.PatientID || n.AuthorID != f.doctor.AccountUUID() {
		t.Error("expected patient and author to be taken from visit and caller")
	}
	if len(f.rec.entries) != 1 || f.rec.entries[0].EntityType != audit.EntityNote {
		t.Errorf("expected note audit entry, got %+v", f.rec.entries)
	}
}

func TestService_Create_Rules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.nurse, f.visit.ID, CreateRequest{Type: "CONSULTATION", Content: "x"})
	wantStatus(t, err, http.StatusForbidden)

	if _, err := f.svc.Create(ctx, f.nurse, f.visit.ID, CreateRequest{Type: "NURSING", Content: "Vitals taken"}); err != nil {
		t.Errorf("expected nursing note to be accepted, got %v", err)
	}

	_, err = f.svc.Create(ctx, f.doctor, f.visit.ID, CreateRequest{Type: "SOAP", Content: "x"})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Create(ctx, f.doctor, f.visit.ID, CreateRequest{Type: "PROGRESS", Content: "   "})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Create(ctx, f.doctor, uuid.New(), CreateRequest{Type: "PROGRESS", Content: "x"})
	wantStatus(t, err, http.StatusNotFound)

	f.visit.Status = visit.StatusCompleted
	_, err = f.svc.Create(ctx, f.doctor, f.visit.ID, CreateRequest{Type: "PROGRESS", Content: "x"})
	wantStatus(t, err, http.StatusConflict)
}

func TestService_Update(t *testing.T) {
	f := newFixture()
	n := f.write(t, f.doctor, CreateRequest{Type: "CONSULTATION", Content: "Initial"})
	ctx := context.Background()
	content := "Revised assessment"
	rx := "Paracetamol 500mg"

	out, err := f.svc.Update(ctx, f.doctor, n.ID, UpdateRequest{Content: &content, Prescription: &rx})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if out.Content != content || out.Prescription == nil || *out.Prescription != rx {
		t.Errorf("unexpected note %+v", out)
	}
	if len(f.rec.entries) != 1 || f.rec.entries[0].Action != audit.ActionUpdate {
		t.Errorf("expected UPDATE entry, got %+v", f.rec.entries)
	}

	other := &auth.AccountContext{ID: uuid.NewString(), TenantID: f.tenantID.String(), Role: auth.RoleDoctor}
	_, err = f.svc.Update(ctx, other, n.ID, UpdateRequest{Content: &content})
	wantStatus(t, err, http.StatusForbidden)

	f.visit.Status = visit.StatusCompleted
	_, err = f.svc.Update(ctx, f.doctor, n.ID, UpdateRequest{Content: &content})
	wantStatus(t, err, http.StatusConflict)
}

func TestService_Update_NurseCannotRetype(t *testing.T) {
	f := newFixture()
	n := f.write(t, f.nurse, CreateRequest{Type: "NURSING", Content: "Observation"})
	typ := "DISCHARGE"

	_, err := f.svc.Update(context.Background(), f.nurse, n.ID, UpdateRequest{Type: &typ})
	wantStatus(t, err, http.StatusForbidden)
}

func TestService_Update_OtherTenant(t *testing.T) {
	f := newFixture()
	n := f.write(t, f.doctor, CreateRequest{Type: "PROGRESS", Content: "x"})
	stranger := &auth.AccountContext{ID: f.doctor.ID, TenantID: uuid.NewString(), Role: auth.RoleDoctor}
	content := "y"

	_, err := f.svc.Update(context.Background(), stranger, n.ID, UpdateRequest{Content: &content})
	wantStatus(t, err, http.StatusNotFound)
}

func TestService_Lists(t *testing.T) {
	f := newFixture()
	first := f.write(t, f.doctor, CreateRequest{Type: "CONSULTATION", Content: "one"})
	second := f.write(t, f.nurse, CreateRequest{Type: "NURSING", Content: "two"})
	ctx := context.Background()

	byVisit, err := f.svc.ListForVisit(ctx, f.doctor, f.visit.ID)
	if err != nil {
		t.Fatalf("ListForVisit: %v", err)
	}
	if len(byVisit) != 2 || byVisit[0].ID != first.ID {
		t.Errorf("expected chronological order, got %+v", byVisit)
	}

	history, total, err := f.svc.ListForPatient(ctx, f.doctor, f.visit.PatientID, pagination.Params{Limit: 1})
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if total != 2 || len(history) != 1 || history[0].ID != second.ID {
		t.Errorf("expected newest first with total 2, got %d %+v", total, history)
	}

	_, _, err = f.svc.ListForPatient(ctx, f.doctor, uuid.New(), pagination.Params{Limit: 10})
	wantStatus(t, err, http.StatusNotFound)

	_, err = f.svc.ListForVisit(ctx, f.doctor, uuid.New())
	wantStatus(t, err, http.StatusNotFound)
}
