package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tenantwise/dbgovernor/internal/calibration"
	"github.com/tenantwise/dbgovernor/internal/config"
	"github.com/tenantwise/dbgovernor/internal/costestimator"
	"github.com/tenantwise/dbgovernor/internal/gatekeeper"
	"github.com/tenantwise/dbgovernor/internal/handler"
	"github.com/tenantwise/dbgovernor/internal/healthcheck"
	"github.com/tenantwise/dbgovernor/internal/metrics"
	"github.com/tenantwise/dbgovernor/internal/middleware"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/proxy"
	"github.com/tenantwise/dbgovernor/internal/repository"
	"github.com/tenantwise/dbgovernor/internal/scheduler"
	"github.com/tenantwise/dbgovernor/internal/service"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"github.com/tenantwise/dbgovernor/internal/tierconfig"
	"github.com/tenantwise/dbgovernor/internal/transition"
	"github.com/tenantwise/dbgovernor/internal/usage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	proxy      *proxy.Proxy
	recorder   *usage.Recorder
	scheduler  *scheduler.Scheduler
	httpServer *http.Server

	tenantService *service.TenantService
	authService   *service.AuthService
}

func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) (*Server, error) {
	if len(cfg.Backend.Endpoints) == 0 {
		return nil, errors.New("at least one backend endpoint must be configured")
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	mtr := metrics.New()

	// Repositories
	tenantRepo := repository.NewTenantRepository(postgres)
	tierRepo := repository.NewTierRepository(postgres)
	usageRepo := repository.NewUsageRepository(postgres)
	calibrationRepo := repository.NewCalibrationRepository(postgres)
	transitionRepo := repository.NewTransitionRepository(postgres)
	authRepo := repository.NewAuthRepository(postgres)
	policyStore := repository.NewPolicyStore(tenantRepo, tierRepo)

	// Services
	tenantService := service.NewTenantService(tenantRepo, redis)
	authService := service.NewAuthService(authRepo, os.Getenv("JWT_SECRET"), cfg.Auth.JWTExpiryHours)
	usageService := service.NewUsageService(usageRepo, calibrationRepo)

	// Admission collaborators
	cache := tierconfig.NewCache(policyStore, cfg.Cache.TTL())
	cache.OnStale(mtr.StaleConfigServed.Inc)

	gate := gatekeeper.New()
	gate.OnLeaseChange(func(tenantID uuid.UUID, live int) {
		mtr.LiveLeases.WithLabelValues(tenantID.String()).Set(float64(live))
	})

	plannerTimeout := time.Duration(cfg.Backend.PlannerTimeoutMs) * time.Millisecond
	planner := costestimator.NewHTTPPlanner(cfg.Backend.Endpoints[0], cfg.Backend.ExplainPath, plannerTimeout)
	estimator := costestimator.New(planner, plannerTimeout)
	estimator.OnFallback(mtr.EstimatorFallbacks.Inc)

	recorder := usage.NewRecorder(usageRepo, gate, cfg.Usage.QueueSize, cfg.Usage.FlushInterval())
	recorder.OnDrop(mtr.UsageEventsDropped.Inc)
	recorder.OnFlushError(mtr.UsageBatchFailures.Inc)

	// Transition coordination across every tier-policy-bearing store
	stores := []transition.PolicyEnforcer{
		transition.NewPolicyStoreEnforcer(tenantRepo),
		transition.NewRateLimitEnforcer(redis),
		transition.NewSessionDefaultsEnforcer(cfg.Backend.Endpoints[0], cfg.Backend.SessionAdminPath, 5*time.Second),
	}
	coordinator := transition.NewCoordinator(stores, transitionRepo, tierRepo, tenantRepo,
		gate, cache, cfg.Transition.Grace())
	coordinator.OnOutcome(func(outcome string) {
		mtr.Transitions.WithLabelValues(outcome).Inc()
	})

	backendProxy, err := proxy.New(proxy.Config{
		Endpoints: cfg.Backend.Endpoints,
		Strategy:  cfg.Backend.Strategy,
		HealthCheck: healthcheck.Config{
			Path: cfg.Backend.HealthPath,
		},
	})
	if err != nil {
		return nil, err
	}

	calibrator := calibration.NewCalibrator(usageRepo, calibrationRepo)

	s := &Server{
		router:        router,
		config:        cfg,
		redis:         redis,
		postgres:      postgres,
		proxy:         backendProxy,
		recorder:      recorder,
		scheduler:     scheduler.New(calibrator, transitionRepo, cfg.Transition.RetentionDays),
		tenantService: tenantService,
		authService:   authService,
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	s.setupRoutes(handlers{
		auth:        handler.NewAuthHandler(authService),
		tenant:      handler.NewTenantHandler(tenantService, tierRepo, coordinator),
		tier:        handler.NewTierHandler(tierRepo),
		usage:       handler.NewUsageHandler(usageService),
		calibration: handler.NewCalibrationHandler(calibrator, usageService),
		transition:  handler.NewTransitionHandler(transitionRepo),
		system:      handler.NewSystemHandler(postgres, redis, backendProxy),
	}, middleware.AdmissionDeps{
		Cache:     cache,
		Gate:      gate,
		Redis:     redis,
		Estimator: estimator,
		Recorder:  recorder,
		Metrics:   mtr,
	})

	return s, nil
}

type handlers struct {
	auth        *handler.AuthHandler
	tenant      *handler.TenantHandler
	tier        *handler.TierHandler
	usage       *handler.UsageHandler
	calibration *handler.CalibrationHandler
	transition  *handler.TransitionHandler
	system      *handler.SystemHandler
}

func (s *Server) setupRoutes(h handlers, deps middleware.AdmissionDeps) {
	s.router.GET("/health", h.system.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/auth/login", h.auth.Login)

	// Operator surface
	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/status", h.system.Status)

		admin.POST("/operators", h.auth.Register)

		admin.POST("/tenants", h.tenant.Create)
		admin.GET("/tenants", h.tenant.List)
		admin.GET("/tenants/:id", h.tenant.Get)
		admin.PUT("/tenants/:id/tier", h.tenant.ChangeTier)
		admin.GET("/tenants/:id/usage", h.usage.Tenant)
		admin.GET("/tenants/:id/transitions", h.transition.ListByTenant)

		admin.GET("/tiers", h.tier.List)
		admin.GET("/tiers/:name", h.tier.Get)

		admin.GET("/usage", h.usage.Period)

		admin.POST("/calibrations", h.calibration.Close)
		admin.GET("/calibrations", h.calibration.List)
		admin.GET("/calibrations/pending", h.calibration.Pending)

		admin.GET("/transitions", h.transition.List)
	}

	// Governed tenant traffic: authenticate, admit, forward
	db := s.router.Group("/db")
	db.Use(middleware.TenantAuth(s.tenantService))
	db.Use(middleware.Admission(deps))
	{
		db.Any("/*proxyPath", s.proxy.Handle)
	}
}

// Seeds the tier catalog from config when the table is empty.
func (s *Server) SeedTiers(ctx context.Context) error {
	if len(s.config.Tiers) == 0 {
		return nil
	}

	tierRepo := repository.NewTierRepository(s.postgres)

	tiers := make([]models.TierDefinition, 0, len(s.config.Tiers))
	for _, t := range s.config.Tiers {
		tiers = append(tiers, models.TierDefinition{
			Name:               t.Name,
			MaxConnections:     t.MaxConnections,
			RequestsPerSecond:  t.RequestsPerSecond,
			CostCeiling:        t.CostCeiling,
			TimeoutMs:          t.TimeoutMs,
			WorkMemMB:          t.WorkMemMB,
			MaxParallelWorkers: t.MaxParallelWorkers,
			Algorithm:          t.Algorithm,
		})
	}

	return tierRepo.Seed(ctx, tiers)
}

// Creates the initial operator account from env on first startup.
func (s *Server) BootstrapOperator(ctx context.Context) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	if err := s.authService.Register(ctx, email, password, "bootstrap"); err != nil {
		// Existing account on restart is expected
		log.Printf("Operator bootstrap skipped: %v", err)
	}
	return nil
}

func (s *Server) Run(addr string) error {
	s.recorder.Start()

	if err := s.scheduler.Start(); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // long-running queries pass through
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting governor on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	s.scheduler.Stop()
	s.proxy.Stop()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Final flush happens after in-flight requests finished recording
	s.recorder.Stop()

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
