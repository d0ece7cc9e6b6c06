package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cliniccloud/cliniccloud/internal/config"
	"github.com/cliniccloud/cliniccloud/internal/domain/account"
	"github.com/cliniccloud/cliniccloud/internal/domain/analytics"
	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/clinical"
	"github.com/cliniccloud/cliniccloud/internal/domain/documents"
	"github.com/cliniccloud/cliniccloud/internal/domain/invoice"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/scheduling"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/middleware"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second
	overdueEvery   = time.Hour
)

// newRouter builds the HTTP surface around a. dbHealth is nil when there is
// no database to probe.
func newRouter(a *app, dbHealth db.Pinger, stats func() db.PoolStats) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit("2M", map[string]string{
		apiPrefix + "/documents": "25M",
		"/billing/webhook":       "1M",
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout,
		apiPrefix+"/documents/*/content",
		apiPrefix+"/analytics/export",
		apiPrefix+"/invoices/*/pdf",
	))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: cfg.SigningKey(),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if dbHealth != nil {
		e.GET("/health/db", db.HealthHandler(dbHealth, stats))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}

	public := e.Group(apiPrefix, middleware.RateLimit(rl))
	api := e.Group(apiPrefix,
		auth.RequireActor(),
		middleware.RateLimit(rl),
		middleware.Audit(logger, apiPrefix, auditRecorder(a.recorder)),
		analytics.Tracker(a.analytics, apiPrefix),
	)

	accounts := account.NewHandler(a.prov, a.accounts, a.authn, logger)
	accounts.OnLogin(func(ctx context.Context, actor tenancy.Actor) {
		a.analytics.Track(ctx, actor, analytics.EventLogin, "auth/login", nil)
	})
	accounts.RegisterPublicRoutes(public)
	accounts.RegisterRoutes(api)

	tenants := tenant.NewHandler(a.tenants, logger)
	tenants.RegisterPublicRoutes(public)
	tenants.RegisterRoutes(api)

	bill := billing.NewHandler(a.processor, a.billing, a.tenants, logger)
	bill.RegisterWebhook(e)
	bill.RegisterPublicRoutes(public)
	bill.RegisterRoutes(api, a.authz.Require("billing", auth.ActWrite))

	patient.NewHandler(a.patients, logger).RegisterRoutes(api, a.authz)
	clinical.NewHandler(a.clinical, logger).RegisterRoutes(api, a.authz)
	scheduling.NewHandler(a.schedule, logger).RegisterRoutes(api, a.authz)
	documents.NewHandler(a.documents, logger).RegisterRoutes(api, a.authz)
	invoice.NewHandler(a.invoices, logger).RegisterRoutes(api, a.authz)
	analytics.NewHandler(a.analytics, logger).RegisterRoutes(api, a.authz)
	audit.NewHandler(a.audits, logger).RegisterRoutes(api)

	ops := api.Group("/admin", auth.RequirePlatformAdmin())
	notification.NewHandler(a.notify).RegisterRoutes(ops)

	return e
}

// auditRecorder persists API mutations through the audit domain.
func auditRecorder(rec *audit.Recorder) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(ctx context.Context, e middleware.AuditEntry) error {
		rec.Record(ctx, e.Actor, audit.Entry{
			Action:     "api." + e.Action,
			Resource:   e.Resource,
			ResourceID: e.ResourceID,
			Details:    e.Method + " " + e.Route,
			IPAddress:  e.IPAddress,
			RequestID:  e.RequestID,
		})
		return nil
	})
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	d, cleanup, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(cfg, pgRepos(pool), d, logger)
	if err != nil {
		return err
	}
	e := newRouter(a, pool, func() db.PoolStats { return db.GetPoolStats(pool) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.sweeper.Run(gctx, cfg.TrialSweepInterval)
	})
	g.Go(func() error {
		ticker := time.NewTicker(overdueEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := a.invoices.MarkOverdue(gctx); err != nil && gctx.Err() == nil {
					logger.Error().Err(err).Msg("mark overdue invoices")
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
