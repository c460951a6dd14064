package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/wardwatch/internal/config"
	"github.com/ehr/wardwatch/internal/domain/careteam"
	"github.com/ehr/wardwatch/internal/domain/dashboard"
	"github.com/ehr/wardwatch/internal/domain/identity"
	"github.com/ehr/wardwatch/internal/domain/insight"
	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/domain/pharmacy"
	"github.com/ehr/wardwatch/internal/domain/scheduling"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/internal/platform/db"
	"github.com/ehr/wardwatch/internal/platform/middleware"
	"github.com/ehr/wardwatch/internal/platform/realtime"
)

const (
	requestTimeout   = 30 * time.Second
	revocationSweep  = 5 * time.Minute
	shutdownDeadline = 10 * time.Second
)

// devSession is the caller assumed for token-less requests in development.
var devSession = auth.Session{
	UserID:    uuid.Nil.String(),
	ProfileID: uuid.Nil.String(),
	Role:      auth.RoleAdmin,
	Email:     "dev@localhost",
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewHTTPMetrics(reg)
	hub := realtime.NewHub(logger.With().Str("component", "realtime").Logger(), realtime.NewMetrics(reg))

	// Sessions
	revocations := auth.NewRevocations()
	go revocations.Run(ctx, revocationSweep)
	tokens := auth.NewTokens([]byte(cfg.AuthSigningKey), cfg.AuthTokenTTL, revocations)

	// Services
	identitySvc := identity.NewService(identity.NewRepo(pool), pool, tokens)
	patientSvc := patient.NewService(patient.NewRepo(pool), pool, identitySvc)
	careteamSvc := careteam.NewService(careteam.NewDirectoryRepo(pool), careteam.NewRequestRepo(pool),
		careteam.NewRecordRepo(pool), patientSvc, pool)
	patientSvc.RecordAdmissionsWith(careteamSvc)
	monitoringSvc := monitoring.NewService(monitoring.NewRepo(pool), pool)
	messagingSvc := messaging.NewService(messaging.NewRepo(pool))
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepo(pool), scheduling.NewConsultationRepo(pool), pool)
	pharmacySvc := pharmacy.NewService(pharmacy.NewPrescriptionRepo(pool), pharmacy.NewOrderRepo(pool), pool)
	dashboardSvc := dashboard.NewService(dashboard.Sources{
		Patients:   patientSvc,
		Monitoring: monitoringSvc,
		Messages:   messagingSvc,
		Schedule:   schedulingSvc,
		Pharmacy:   pharmacySvc,
		Profiles:   identitySvc,
	})
	var completer insight.Completer
	if cfg.InsightEnabled() {
		completer = insight.NewOpenAIClient(cfg.InsightBaseURL, cfg.InsightAPIKey, cfg.InsightModel)
	} else {
		logger.Warn().Msg("INSIGHT_API_KEY not set; /insights will answer 503")
	}
	insightSvc := insight.NewService(completer, cfg.InsightTimeout, logger.With().Str("component", "insight").Logger())

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(httpMetrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	jwtCfg := auth.JWTConfig{Tokens: tokens, Skipper: auth.AuthSkipper}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg, devSession))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":           "ok",
			"realtime_clients": hub.ClientCount(),
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit("1MiB"))

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	careteam.NewHandler(careteamSvc).RegisterRoutes(apiV1)
	monitoring.NewHandler(monitoringSvc, patientSvc).RegisterRoutes(apiV1)
	messaging.NewHandler(messagingSvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc, patientSvc).RegisterRoutes(apiV1)
	pharmacy.NewHandler(pharmacySvc, patientSvc).RegisterRoutes(apiV1)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)
	insight.NewHandler(insightSvc).RegisterRoutes(apiV1)

	// Realtime
	realtime.NewHandler(hub, tokens, realtime.Policy{Patients: patientSvc}, logger, realtime.HandlerConfig{
		SendBuffer:     cfg.RealtimeSendBuffer,
		IdleTimeout:    cfg.RealtimeIdleTimeout,
		SessionCheck:   cfg.RealtimeSessionTick,
		AllowedOrigins: cfg.CORSOrigins,
	}).RegisterRoutes(e)

	listener := db.NewListener(pool, db.ChangeChannel, logger.With().Str("component", "listener").Logger())
	listener.OnResume = hub.BroadcastResync
	go func() {
		if err := listener.Run(ctx, hub.HandleNotification); err != nil {
			logger.Error().Err(err).Msg("change listener stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
