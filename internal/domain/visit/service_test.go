package visit

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opd/opd/internal/platform/apperr"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/pagination"
)

// -- Mocks --

type mockRepo struct {
	visits map[uuid.UUID]*Visit
	// afterGet runs after each GetByID, standing in for a concurrent writer.
	afterGet func(v *Visit)
}

func newMockRepo() *mockRepo {
	return &mockRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = v.CheckInAt
	v.UpdatedAt = v.CheckInAt
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok || v.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *v
	if m.afterGet != nil {
		m.afterGet(v)
	}
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, v *Visit, from Status) error {
	cur, ok := m.visits[v.ID]
	if !ok || cur.Status != from {
		return db.ErrNotFound
	}
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockRepo) Assign(_ context.Context, tenantID, id, doctorID uuid.UUID) error {
	v, ok := m.visits[id]
	if !ok || v.TenantID != tenantID || !v.Status.Open() {
		return db.ErrNotFound
	}
	v.DoctorID = &doctorID
	return nil
}

func (m *mockRepo) List(_ context.Context, tenantID uuid.UUID, f ListFilter, p pagination.Params) ([]*Visit, int, error) {
	var result []*Visit
	for _, v := range m.visits {
		if v.TenantID != tenantID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.PatientID != nil && v.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && (v.DoctorID == nil || *v.DoctorID != *f.DoctorID) {
			continue
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if ri, rj := result[i].Priority.Rank(), result[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return result[i].CheckInAt.Before(result[j].CheckInAt)
	})
	total := len(result)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return result[p.Offset:end], total, nil
}

func (m *mockRepo) RecentByPatient(_ context.Context, tenantID, patientID uuid.UUID, limit int) ([]*Visit, error) {
	var result []*Visit
	for _, v := range m.visits {
		if v.TenantID == tenantID && v.PatientID == patientID {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CheckInAt.After(result[j].CheckInAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepo) HasOpenVisit(_ context.Context, tenantID, patientID uuid.UUID) (bool, error) {
	for _, v := range m.visits {
		if v.TenantID == tenantID && v.PatientID == patientID && v.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) CountByPatient(_ context.Context, tenantID, patientID uuid.UUID) (int, error) {
	n := 0
	for _, v := range m.visits {
		if v.TenantID == tenantID && v.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

// directory answers patient and doctor existence checks.
type directory struct {
	patients map[uuid.UUID]uuid.UUID // patient -> tenant
	doctors  map[uuid.UUID]uuid.UUID // active doctor -> tenant
}

func (d *directory) PatientExists(_ context.Context, tenantID, id uuid.UUID) (bool, error) {
	t, ok := d.patients[id]
	return ok && t == tenantID, nil
}

func (d *directory) IsActiveDoctor(_ context.Context, tenantID, id uuid.UUID) (bool, error) {
	t, ok := d.doctors[id]
	return ok && t == tenantID, nil
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
	dir      *directory
	rec      *fakeRecorder
	clock    time.Time
	tenantID uuid.UUID
	patient  uuid.UUID
	doctor   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		rec:      &fakeRecorder{},
		clock:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		tenantID: uuid.New(),
		patient:  uuid.New(),
		doctor:   uuid.New(),
	}
	f.dir = &directory{
		patients: map[uuid.UUID]uuid.UUID{f.patient: f.tenantID},
		doctors:  map[uuid.UUID]uuid.UUID{f.doctor: f.tenantID},
	}
	f.svc = NewService(f.repo, f.dir, f.dir, fakeTx{}, f.rec)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	return f
}

func (f *fixture) as(role auth.Role) *auth.AccountContext {
	id := uuid.New()
	if role == auth.RoleDoctor {
		id = f.doctor
	}
	return &auth.AccountContext{
		ID: id.String(), TenantID: f.tenantID.String(), Role: role, Name: "Staff " + string(role),
	}
}

func (f *fixture) open(t *testing.T, req OpenRequest) *Visit {
	t.Helper()
	v, err := f.svc.Open(context.Background(), f.as(auth.RoleReceptionist), f.patient, req)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func (f *fixture) newPatient() uuid.UUID {
	id := uuid.New()
	f.dir.patients[id] = f.tenantID
	return id
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if got, msg := apperr.Status(err); got != status {
		t.Fatalf("expected %d, got %d (%s / %v)", status, got, msg, err)
	}
}

// -- Tests --

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusWaiting, StatusInProgress, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusWaiting, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusWaiting, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusWaiting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority(""); err != nil || p != PriorityNormal {
		t.Errorf("expected NORMAL default, got %q %v", p, err)
	}
	if p, err := ParsePriority("emergency"); err != nil || p != PriorityEmergency {
		t.Errorf("expected EMERGENCY, got %q %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestService_Open(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{Priority: "high", ChiefComplaint: " fever ", DoctorID: f.doctor.String()})

	if v.Status != StatusWaiting || v.Priority != PriorityHigh {
		t.Errorf("unexpected visit %+v", v)
	}
	if v.VisitNumber == "" || v.CheckInAt.IsZero() {
		t.Error("expected visit number and check-in time")
	}
	if v.ChiefComplaint == nil || *v.ChiefComplaint != "fever" {
		t.Errorf("expected trimmed complaint, got %v", v.ChiefComplaint)
	}
	if v.DoctorID == nil || *v.DoctorID != f.doctor {
		t.Error("expected doctor to be assigned")
	}
	if len(f.rec.entries) != 1 || f.rec.entries[0].Action != audit.ActionCreate {
		t.Errorf("expected CREATE audit entry, got %+v", f.rec.entries)
	}
}

func TestService_Open_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	recept := f.as(auth.RoleReceptionist)

	_, err := f.svc.Open(ctx, recept, uuid.New(), OpenRequest{})
	wantStatus(t, err, http.StatusNotFound)

	_, err = f.svc.Open(ctx, recept, f.patient, OpenRequest{DoctorID: uuid.New().String()})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Open(ctx, recept, f.patient, OpenRequest{Priority: "urgent"})
	wantStatus(t, err, http.StatusBadRequest)

	f.open(t, OpenRequest{})
	_, err = f.svc.Open(ctx, recept, f.patient, OpenRequest{})
	wantStatus(t, err, http.StatusConflict)
}

func TestService_Open_AfterCompletionAllowed(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	doctor := f.as(auth.RoleDoctor)
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "IN_PROGRESS"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "COMPLETED"}); err != nil {
		t.Fatal(err)
	}
	f.open(t, OpenRequest{})
}

func TestService_Open_OtherTenantPatient(t *testing.T) {
	f := newFixture()
	other := &auth.AccountContext{ID: uuid.NewString(), TenantID: uuid.NewString(), Role: auth.RoleAdmin}

	_, err := f.svc.Open(context.Background(), other, f.patient, OpenRequest{})
	wantStatus(t, err, http.StatusNotFound)
}

func TestService_UpdateStatus_Lifecycle(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	doctor := f.as(auth.RoleDoctor)
	ctx := context.Background()

	started, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "in_progress"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil {
		t.Error("expected started_at")
	}
	if started.DoctorID == nil || *started.DoctorID != f.doctor {
		t.Error("expected doctor to take an unassigned visit")
	}

	done, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "COMPLETED"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil || done.Status != StatusCompleted {
		t.Errorf("unexpected visit %+v", done)
	}

	_, err = f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "CANCELLED"})
	wantStatus(t, err, http.StatusConflict)

	last := f.rec.entries[len(f.rec.entries)-1]
	if last.Action != audit.ActionStatusChange || last.Details["from"] != "IN_PROGRESS" || last.Details["to"] != "COMPLETED" {
		t.Errorf("unexpected audit entry %+v", last)
	}
}

func TestService_UpdateStatus_InvalidTransition(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})

	_, err := f.svc.UpdateStatus(context.Background(), f.as(auth.RoleNurse), v.ID, StatusRequest{Status: "COMPLETED"})
	wantStatus(t, err, http.StatusConflict)

	_, err = f.svc.UpdateStatus(context.Background(), f.as(auth.RoleNurse), v.ID, StatusRequest{Status: "DONE"})
	wantStatus(t, err, http.StatusBadRequest)
}

func TestService_UpdateStatus_ReceptionistCancelOnly(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	recept := f.as(auth.RoleReceptionist)

	_, err := f.svc.UpdateStatus(context.Background(), recept, v.ID, StatusRequest{Status: "IN_PROGRESS"})
	wantStatus(t, err, http.StatusForbidden)

	out, err := f.svc.UpdateStatus(context.Background(), recept, v.ID, StatusRequest{Status: "CANCELLED", CancelReason: "patient left"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if out.CancelReason == nil || *out.CancelReason != "patient left" || out.CompletedAt == nil {
		t.Errorf("unexpected cancelled visit %+v", out)
	}
}

func TestService_Assign(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	nurse := f.as(auth.RoleNurse)

	_, err := f.svc.Assign(context.Background(), nurse, v.ID, AssignRequest{DoctorID: uuid.NewString()})
	wantStatus(t, err, http.StatusBadRequest)

	out, err := f.svc.Assign(context.Background(), nurse, v.ID, AssignRequest{DoctorID: f.doctor.String()})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if out.DoctorID == nil || *out.DoctorID != f.doctor {
		t.Error("expected doctor to be assigned")
	}

	if _, err := f.svc.UpdateStatus(context.Background(), nurse, v.ID, StatusRequest{Status: "CANCELLED"}); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Assign(context.Background(), nurse, v.ID, AssignRequest{DoctorID: f.doctor.String()})
	wantStatus(t, err, http.StatusConflict)
}

func TestService_UpdateStatus_ClosedConcurrently(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	doctor := f.as(auth.RoleDoctor)
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "IN_PROGRESS"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	recorded := len(f.rec.entries)

	f.repo.afterGet = func(stored *Visit) { stored.Status = StatusCancelled }
	_, err := f.svc.UpdateStatus(ctx, doctor, v.ID, StatusRequest{Status: "COMPLETED"})
	wantStatus(t, err, http.StatusConflict)

	if got := f.repo.visits[v.ID]; got.Status != StatusCancelled || got.CompletedAt != nil {
		t.Errorf("expected cancelled visit to stay untouched, got %+v", got)
	}
	if len(f.rec.entries) != recorded {
		t.Errorf("expected no audit entry, got %d new", len(f.rec.entries)-recorded)
	}
}

func TestService_Assign_ClosedConcurrently(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})

	f.repo.afterGet = func(stored *Visit) { stored.Status = StatusCompleted }
	_, err := f.svc.Assign(context.Background(), f.as(auth.RoleNurse), v.ID, AssignRequest{DoctorID: f.doctor.String()})
	wantStatus(t, err, http.StatusConflict)

	if got := f.repo.visits[v.ID]; got.DoctorID != nil {
		t.Errorf("expected no doctor on a closed visit, got %v", *got.DoctorID)
	}
}

func TestService_List_QueueOrder(t *testing.T) {
	f := newFixture()
	recept := f.as(auth.RoleReceptionist)
	ctx := context.Background()

	normal, _ := f.svc.Open(ctx, recept, f.newPatient(), OpenRequest{})
	emergency, _ := f.svc.Open(ctx, recept, f.newPatient(), OpenRequest{Priority: "EMERGENCY"})
	normalLater, _ := f.svc.Open(ctx, recept, f.newPatient(), OpenRequest{Priority: "NORMAL"})

	visits, total, err := f.svc.List(ctx, recept, ListFilter{Status: StatusWaiting}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3, got %d", total)
	}
	want := []uuid.UUID{emergency.ID, normal.ID, normalLater.ID}
	for i, id := range want {
		if visits[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, visits[i].ID)
		}
	}
}

func TestService_RecentForPatient(t *testing.T) {
	f := newFixture()
	doctor := f.as(auth.RoleDoctor)
	ctx := context.Background()

	first := f.open(t, OpenRequest{})
	f.svc.UpdateStatus(ctx, doctor, first.ID, StatusRequest{Status: "CANCELLED"})
	second := f.open(t, OpenRequest{})

	recent, err := f.svc.RecentForPatient(ctx, doctor, f.patient, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != second.ID {
		t.Errorf("expected newest first, got %+v", recent)
	}
	if n, _ := f.svc.CountForPatient(ctx, doctor, f.patient); n != 2 {
		t.Errorf("expected 2 visits, got %d", n)
	}
}

func TestService_GetOpen(t *testing.T) {
	f := newFixture()
	v := f.open(t, OpenRequest{})
	nurse := f.as(auth.RoleNurse)

	if _, err := f.svc.GetOpen(context.Background(), nurse, v.ID); err != nil {
		t.Fatalf("GetOpen: %v", err)
	}
	f.svc.UpdateStatus(context.Background(), nurse, v.ID, StatusRequest{Status: "CANCELLED"})
	_, err := f.svc.GetOpen(context.Background(), nurse, v.ID)
	wantStatus(t, err, http.StatusConflict)

	_, err = f.svc.GetOpen(context.Background(), nurse, uuid.New())
	wantStatus(t, err, http.StatusNotFound)
}
