// Package dashboard summarises a hospital's day for the landing page.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/pkg/response"
)

// Stats is the dashboard payload. Days are UTC calendar days.
type Stats struct {
	Date                 string         `json:"date"`
	TotalPatients        int            `json:"total_patients"`
	PatientsToday        int            `json:"patients_registered_today"`
	VisitsToday          map[string]int `json:"visits_today"`
	WaitingQueue         int            `json:"waiting_queue"`
	InProgress           int            `json:"in_progress"`
	ActiveStaffByRole    map[string]int `json:"active_staff"`
	MyOpenVisits         *int           `json:"my_open_visits,omitempty"`
	AverageWaitMinutes   *float64       `json:"average_wait_minutes,omitempty"`
	CompletedVisitsToday int            `json:"completed_today"`
}

// Counts are the raw aggregates read from storage.
type Counts struct {
	TotalPatients      int
	PatientsToday      int
	VisitsToday        map[visit.Status]int
	WaitingQueue       int
	InProgress         int
	ActiveStaff        map[auth.Role]int
	DoctorOpenVisits   int
	AverageWaitMinutes *float64
}

type Repository interface {
	Counts(ctx context.Context, tenantID uuid.UUID, doctorID *uuid.UUID, dayStart time.Time) (*Counts, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Stats(ctx context.Context, acct *auth.AccountContext) (*Stats, error) {
	day := s.now().UTC().Truncate(24 * time.Hour)

	var doctorID *uuid.UUID
	if acct.Role == auth.RoleDoctor {
		id := acct.AccountUUID()
		doctorID = &id
	}
	c, err := s.repo.Counts(ctx, acct.TenantUUID(), doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	out := &Stats{
		Date:                 day.Format(time.DateOnly),
		TotalPatients:        c.TotalPatients,
		PatientsToday:        c.PatientsToday,
		VisitsToday:          make(map[string]int, len(visit.AllStatuses)),
		WaitingQueue:         c.WaitingQueue,
		InProgress:           c.InProgress,
		ActiveStaffByRole:    make(map[string]int, len(auth.AllRoles)),
		AverageWaitMinutes:   c.AverageWaitMinutes,
		CompletedVisitsToday: c.VisitsToday[visit.StatusCompleted],
	}
	for _, st := range visit.AllStatuses {
		out.VisitsToday[string(st)] = c.VisitsToday[st]
	}
	for _, r := range auth.AllRoles {
		out.ActiveStaffByRole[string(r)] = c.ActiveStaff[r]
	}
	if doctorID != nil {
		n := c.DoctorOpenVisits
		out.MyOpenVisits = &n
	}
	return out, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts on the authorized /tenants/:tenantId group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Get)
}

func (h *Handler) Get(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context(), auth.Account(c))
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

type dashboardRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &dashboardRepoPG{pool: pool}
}

func (r *dashboardRepoPG) Counts(ctx context.Context, tenantID uuid.UUID, doctorID *uuid.UUID, dayStart time.Time) (*Counts, error) {
	q := db.Conn(ctx, r.pool)
	dayEnd := dayStart.Add(24 * time.Hour)
	c := &Counts{
		VisitsToday: make(map[visit.Status]int),
		ActiveStaff: make(map[auth.Role]int),
	}

	err := q.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $2 AND created_at < $3)
		FROM patients WHERE tenant_id = $1`, tenantID, dayStart, dayEnd,
	).Scan(&c.TotalPatients, &c.PatientsToday)
	if err != nil {
		return nil, db.MapError(err)
	}

	err = q.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'WAITING'),
		       COUNT(*) FILTER (WHERE status = 'IN_PROGRESS'),
		       COUNT(*) FILTER (WHERE status IN ('WAITING', 'IN_PROGRESS') AND doctor_id = $2),
		       AVG(EXTRACT(EPOCH FROM (started_at - check_in_at)) / 60)::float8
		           FILTER (WHERE started_at IS NOT NULL AND check_in_at >= $3 AND check_in_at < $4)
		FROM visits WHERE tenant_id = $1`, tenantID, doctorID, dayStart, dayEnd,
	).Scan(&c.WaitingQueue, &c.InProgress, &c.DoctorOpenVisits, &c.AverageWaitMinutes)
	if err != nil {
		return nil, db.MapError(err)
	}

	rows, err := q.Query(ctx, `
		SELECT status, COUNT(*) FROM visits
		WHERE tenant_id = $1 AND check_in_at >= $2 AND check_in_at < $3
		GROUP BY status`, tenantID, dayStart, dayEnd)
	if err != nil {
		return nil, db.MapError(err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		c.VisitsToday[visit.Status(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT role, COUNT(*) FROM accounts
		WHERE tenant_id = $1 AND active
		GROUP BY role`, tenantID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		c.ActiveStaff[auth.Role(role)] = n
	}
	return c, rows.Err()
}
