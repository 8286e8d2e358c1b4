package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/api"
	"github.com/finflow/finqueue/internal/compute"
	"github.com/finflow/finqueue/internal/config"
	"github.com/finflow/finqueue/internal/db"
	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/metrics"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/notify/adapter"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ratelimiter"
	"github.com/finflow/finqueue/internal/repository"
	"github.com/finflow/finqueue/internal/worker"
	"github.com/finflow/finqueue/internal/ws"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg := config.Load()

	// ---- stores ----
	ctx := context.Background()
	var (
		jobStore    repository.JobStore
		notifyStore repository.NotifyStore
	)
	storeMode := "postgres"
	if cfg.DatabaseURL == "" {
		storeMode = "memory"
		logger.Warn("DATABASE_URL not set, using in-memory stores; jobs will not survive a restart")
		jobStore = repository.NewMemoryJobStore()
		notifyStore = repository.NewMemoryNotifyStore()
	} else {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")

		jobStore = repository.NewPgJobStore(pool)
		notifyStore = repository.NewPgNotifyStore(pool)
	}

	// ---- core dependencies ----
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	registry := queue.NewRegistry()
	manager := queue.NewManager(jobStore, registry, queue.Defaults{
		MaxAttempts: cfg.DefaultMaxAttempts,
		BackoffBase: cfg.RetryBaseDelay,
	}, m.QueueHooks(), logger)

	hub := ws.NewHub(logger)
	limiter := ratelimiter.New(cfg.RateLimitPerChannel)
	adapters := map[domain.Channel]adapter.Adapter{
		domain.ChannelPush:  adapter.New(domain.ChannelPush, cfg.PushGatewayURL, cfg.ProviderTimeout, logger),
		domain.ChannelEmail: adapter.New(domain.ChannelEmail, cfg.EmailGatewayURL, cfg.ProviderTimeout, logger),
		domain.ChannelSMS:   adapter.New(domain.ChannelSMS, cfg.SMSGatewayURL, cfg.ProviderTimeout, logger),
	}

	svc := notify.NewService(manager, notifyStore, hub, adapters, limiter, m.DeliveryHook(), logger)

	// ---- handler registration ----
	compute.Register(registry)
	compute.RegisterReports(registry)
	svc.Register(registry)

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool := worker.NewPool(manager, []worker.QueueConfig{
		{Name: domain.QueueCalculations, Concurrency: cfg.CalcWorkers},
		{Name: domain.QueueReports, Concurrency: cfg.ReportWorkers},
		{Name: domain.QueueNotifications, Concurrency: cfg.NotifyWorkers},
		{Name: domain.QueuePush, Concurrency: cfg.ChannelWorkers},
		{Name: domain.QueueEmail, Concurrency: cfg.ChannelWorkers},
		{Name: domain.QueueSMS, Concurrency: cfg.ChannelWorkers},
	}, cfg.PollInterval, cfg.HandlerTimeout, logger)
	pool.Start(workerCtx)

	reaper := worker.NewReaper(jobStore, cfg.HandlerTimeout, cfg.ClaimGrace, cfg.ReaperInterval, logger)
	go reaper.Run(workerCtx)

	janitor := worker.NewJanitor(jobStore, cfg.CompletedRetention, cfg.DeadLetterRetention, cfg.JanitorInterval, logger)
	go janitor.Run(workerCtx)

	go m.PollQueueDepth(workerCtx, jobStore, 10*time.Second)

	// ---- HTTP server ----
	router := api.NewRouter(manager, svc, hub, promReg, storeMode, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal workers to stop claiming new jobs.
	cancelWorkers()

	// 3. Wait for in-flight handlers to finish and settle their claims.
	pool.Wait()

	logger.Info("server stopped cleanly")
}
