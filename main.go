package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	orchestration "github.com/velia-ai/velia/go/orchestrator/internal/client"
	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/db"
	"github.com/velia-ai/velia/go/orchestrator/internal/health"
	"github.com/velia-ai/velia/go/orchestrator/internal/httpapi"
	"github.com/velia-ai/velia/go/orchestrator/internal/queues"
	"github.com/velia-ai/velia/go/orchestrator/internal/registry"
	"github.com/velia-ai/velia/go/orchestrator/internal/schedules"
	"github.com/velia-ai/velia/go/orchestrator/internal/temporal"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
	"github.com/velia-ai/velia/go/orchestrator/internal/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	dbConfig := db.Config(cfg.Database)
	store, err := db.NewClient(&dbConfig, logger)
	if err != nil {
		logger.Fatal("failed to initialize database client", zap.Error(err))
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	resolver := tenant.NewResolver(store.GetDB(), redisClient, cfg.Redis.CacheTTL, logger)

	temporalClient, err := temporal.Init(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("failed to connect to Temporal", zap.Error(err))
	}
	defer temporal.Close()

	sets := registry.ActivitySets{
		Messaging:    activities.NewMessagingActivities(cfg.WhatsApp, resolver, logger),
		Calendar:     activities.NewCalendarActivities(cfg.Calendar, logger),
		Billing:      activities.NewBillingActivities(cfg.Billing, logger),
		Persistence:  activities.NewPersistenceActivities(store, logger),
		Compensation: activities.NewCompensationActivities(temporalClient, store, logger),
		Sync:         activities.NewSyncActivities(cfg.Sync, logger),
	}

	// One worker per lane. The per-lane concurrency ceilings are what keep
	// a shared-tier burst from starving priority and enterprise tenants.
	router := queues.NewRouter(cfg.Queues)
	workers := make([]worker.Worker, 0)
	for _, lane := range router.Lanes() {
		w := worker.New(temporalClient, lane.Queue, worker.Options{
			MaxConcurrentActivityExecutionSize:     lane.MaxConcurrentActivity,
			MaxConcurrentWorkflowTaskExecutionSize: lane.MaxConcurrentWorkflow,
		})
		registry.RegisterAll(w, sets)
		if err := w.Start(); err != nil {
			logger.Fatal("failed to start worker", zap.String("queue", lane.Queue), zap.Error(err))
		}
		logger.Info("worker started",
			zap.String("queue", lane.Queue),
			zap.Int("max_activities", lane.MaxConcurrentActivity),
			zap.Int("max_workflows", lane.MaxConcurrentWorkflow))
		workers = append(workers, w)
	}

	healthManager := health.NewManager(logger)
	healthManager.Register(health.NewDatabaseChecker(store.GetDB()))
	healthManager.Register(health.NewRedisChecker(redisClient))
	healthManager.Register(health.NewTemporalChecker(temporalClient))
	go healthManager.Start(ctx)

	orch := orchestration.NewOrchestrator(temporalClient, router, resolver, cfg.Workflows, logger)

	scheduleManager := schedules.NewManager(temporalClient, store.GetDB(), logger)
	if err := scheduleManager.EnsureSweeps(ctx, cfg.Workflows.BulkSyncCron, cfg.Calendar.BusinessTimezone, queues.SharedQueue); err != nil {
		logger.Warn("failed to reconcile sweep schedules", zap.Error(err))
	}

	mux := http.NewServeMux()
	health.NewHTTPHandler(healthManager).RegisterRoutes(mux)
	httpapi.NewOrchestrationHandler(orch, logger, cfg.HTTP.AuthToken).RegisterRoutes(mux)

	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("admin HTTP server listening", zap.Int("port", cfg.HTTP.Port))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin HTTP server failed", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("metrics server listening", zap.Int("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	for _, w := range workers {
		w.Stop()
	}

	logger.Info("shutdown complete")
	os.Exit(0)
}
