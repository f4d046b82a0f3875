package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/opd/opd/internal/config"
	"github.com/opd/opd/internal/domain/account"
	"github.com/opd/opd/internal/domain/auditlog"
	"github.com/opd/opd/internal/domain/dashboard"
	"github.com/opd/opd/internal/domain/note"
	"github.com/opd/opd/internal/domain/patient"
	"github.com/opd/opd/internal/domain/tenant"
	"github.com/opd/opd/internal/domain/visit"
	"github.com/opd/opd/internal/domain/vitals"
	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/auth"
	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/internal/platform/middleware"
	"github.com/opd/opd/internal/platform/ratelimit"
	"github.com/opd/opd/internal/platform/validate"
	"github.com/opd/opd/migrations"
)

const (
	version     = "0.1.0"
	tokenIssuer = "opd"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OPD API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

// handlers are the route groups mounted by newRouter.
type handlers struct {
	tenant    *tenant.Handler
	account   *account.Handler
	patient   *patient.Handler
	visit     *visit.Handler
	note      *note.Handler
	vitals    *vitals.Handler
	dashboard *dashboard.Handler
	auditlog  *auditlog.Handler
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode; do not use this configuration in production")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	migrator, err := db.NewMigrator(pool, migrations.FS)
	if err != nil {
		return err
	}
	if migrate {
		applied, err := migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("count", len(applied)).Msg("migrations applied")
	}

	limiter := ratelimit.NewMemory(ratelimit.MemoryConfig{})
	if cfg.RedisURL != "" {
		l, client, err := ratelimit.NewRedisFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		limiter = l
		logger.Info().Msg("login throttling backed by redis")
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	svcs := newServices(pool, verifier, limiter, logger, cfg)
	authz := auth.NewAuthorizer(verifier, svcs.accountRepo, cfg.SessionCookieName)
	h := newHandlers(svcs, authz, cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(reg)

	e := newRouter(cfg, logger, authz, metrics, h)
	e.GET("/health/db", db.HealthHandler(pool, migrator))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	return auth.NewVerifier(auth.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Lifetime: cfg.JWTExpiresIn,
		Issuer:   tokenIssuer,
	})
}

// services are the domain services sharing one pool, transaction manager
// and audit recorder.
type services struct {
	accountRepo account.Repository
	tenant      *tenant.Service
	account     *account.Service
	patient     *patient.Service
	visit       *visit.Service
	note        *note.Service
	vitals      *vitals.Service
	dashboard   *dashboard.Service
	auditlog    *auditlog.Service
}

func newServices(pool *pgxpool.Pool, verifier *auth.Verifier, limiter ratelimit.Limiter, logger zerolog.Logger, cfg *config.Config) *services {
	tx := db.NewTxManager(pool)
	recorder := audit.NewLogger(pool)

	accountRepo := account.NewRepo(pool)
	patientRepo := patient.NewRepo(pool)

	tenantSvc := tenant.NewService(tenant.NewRepo(pool), tx, recorder)
	visitSvc := visit.NewService(visit.NewRepo(pool), patientRepo, accountRepo, tx, recorder)

	return &services{
		accountRepo: accountRepo,
		tenant:      tenantSvc,
		account: account.NewService(accountRepo, tenantSvc, tx, recorder, verifier, limiter, logger, account.Config{
			LoginMaxAttempts: cfg.LoginMaxAttempts,
			LoginWindow:      cfg.LoginWindow,
		}),
		patient:   patient.NewService(patientRepo, visitSvc, tx, recorder),
		visit:     visitSvc,
		note:      note.NewService(note.NewRepo(pool), visitSvc, patientRepo, tx, recorder),
		vitals:    vitals.NewService(vitals.NewRepo(pool), visitSvc, patientRepo, tx, recorder),
		dashboard: dashboard.NewService(dashboard.NewRepo(pool)),
		auditlog:  auditlog.NewService(auditlog.NewRepo(pool)),
	}
}

func newHandlers(s *services, authz *auth.Authorizer, cfg *config.Config) *handlers {
	return &handlers{
		tenant: tenant.NewHandler(s.tenant),
		account: account.NewHandler(s.account, authz, account.CookieConfig{
			Name:   cfg.SessionCookieName,
			Secure: cfg.CookieSecure,
		}),
		patient:   patient.NewHandler(s.patient),
		visit:     visit.NewHandler(s.visit),
		note:      note.NewHandler(s.note),
		vitals:    vitals.NewHandler(s.vitals),
		dashboard: dashboard.NewHandler(s.dashboard),
		auditlog:  auditlog.NewHandler(s.auditlog),
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
		rl.BurstSize = cfg.RateLimitBurst
	}
	rl.Skipper = func(c echo.Context) bool { return c.Path() == "/health" || c.Path() == "/metrics" }
	return rl
}

// newRouter assembles the middleware chain and mounts every route. Every
// route under /api/v1/tenants/:tenantId runs behind the authorizer.
func newRouter(cfg *config.Config, logger zerolog.Logger, authz *auth.Authorizer, metrics *middleware.Metrics, h *handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)
	e.Validator = validate.New()

	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	e.Use(middleware.AccessLog(logger, metrics.AccessRecorder()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	h.account.RegisterAuthRoutes(apiV1.Group("/auth"))

	tenantGroup := apiV1.Group("/tenants/:tenantId", authz.Require(auth.WithTenantParam("tenantId")))
	h.tenant.RegisterRoutes(tenantGroup)
	h.account.RegisterTeamRoutes(tenantGroup)
	h.patient.RegisterRoutes(tenantGroup)
	h.visit.RegisterRoutes(tenantGroup)
	h.note.RegisterRoutes(tenantGroup)
	h.vitals.RegisterRoutes(tenantGroup)
	h.dashboard.RegisterRoutes(tenantGroup)
	h.auditlog.RegisterRoutes(tenantGroup)

	return e
}
