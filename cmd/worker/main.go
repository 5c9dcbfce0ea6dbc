package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/amanah-kas/amanah-kas/internal/app"
	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/events"
	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/journal"
	"github.com/amanah-kas/amanah-kas/internal/platform/cache"
	"github.com/amanah-kas/amanah-kas/internal/platform/db"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
	"github.com/amanah-kas/amanah-kas/internal/shared"
	"github.com/amanah-kas/amanah-kas/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker cannot run without Redis, so a failed ping is fatal here.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	hierarchyRepo := hierarchy.NewRepository(pool)
	resolver := hierarchy.NewResolver(hierarchyRepo)

	// Read-side services for the report jobs. No publisher: the worker never
	// mutates balances, it only rebuilds views over them.
	custodyService := custody.NewService(custody.NewRepository(pool), resolver, auditLogger, nil)
	handoverService := handover.NewService(handover.NewRepository(pool), custodyService, resolver, auditLogger, nil).
		WithStaleAfter(cfg.HandoverStaleAfter)
	journalService := journal.NewService(journal.NewRepository(pool), auditLogger)

	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(custodyService, journalService, handoverService, reportCache)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	dispatchJob := jobs.NewEventDispatchJob(reportCache, jobsClient, logger, nil)
	refreshJob := jobs.NewReportingRefreshJob(reportingService, logger, nil)
	overdueJob := jobs.NewOverdueScanJob(pool, jobsClient, logger, nil)
	reconcileJob := jobs.NewReconcileCheckJob(reportingService, logger, nil)
	sweepJob := jobs.NewIdempotencySweepJob(shared.NewIdempotencyStore(pool), logger, nil)

	refreshTask, err := jobs.NewReportingRefreshTask(cfg.OverdueThresholdDays)
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewOverdueScanTask(cfg.OverdueThresholdDays)
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask := jobs.NewReconcileCheckTask()
	sweepTask, err := jobs.NewIdempotencySweepTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: events.TaskTypeDispatch, Handler: dispatchJob.Handle},
			{Type: jobs.TaskReportingRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskCustodyOverdueScan, Handler: overdueJob.Handle},
			{Type: jobs.TaskReconcileCheck, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencySweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
