package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/amanah-kas/amanah-kas/cmd/amanahkas/cli"
	"github.com/amanah-kas/amanah-kas/internal/app"
	"github.com/amanah-kas/amanah-kas/internal/approval"
	"github.com/amanah-kas/amanah-kas/internal/audit"
	"github.com/amanah-kas/amanah-kas/internal/auth"
	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/events"
	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/journal"
	"github.com/amanah-kas/amanah-kas/internal/observability"
	"github.com/amanah-kas/amanah-kas/internal/platform/db"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
	"github.com/amanah-kas/amanah-kas/internal/shared"
	"github.com/amanah-kas/amanah-kas/internal/view"
	"github.com/amanah-kas/amanah-kas/jobs"
	"github.com/amanah-kas/amanah-kas/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	// The jobs helper needs only Redis, so it dispatches before Postgres opens.
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(cli.RunJobs(ctx, cfg.RedisAddr, os.Args[2:], os.Stdout, os.Stderr))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	publisher := events.NewAsynqPublisher(asynqClient, logger)

	auditLogger := shared.NewAuditLogger(dbpool)

	hierarchyRepo := hierarchy.NewRepository(dbpool)
	resolver := hierarchy.NewResolver(hierarchyRepo)

	custodyRepo := custody.NewRepository(dbpool)
	custodyService := custody.NewService(custodyRepo, resolver, auditLogger, publisher)
	custodyHandler := custody.NewHandler(logger, custodyService)

	handoverRepo := handover.NewRepository(dbpool)
	handoverService := handover.NewService(handoverRepo, custodyService, resolver, auditLogger, publisher).
		WithStaleAfter(cfg.HandoverStaleAfter)
	handoverHandler := handover.NewHandler(logger, handoverService).
		WithIdempotency(shared.NewIdempotencyStore(dbpool))

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo, auditLogger)

	approvalRepo := approval.NewRepository(dbpool)
	approvalService := approval.NewService(approvalRepo, resolver, auditLogger)
	approvalHandler := approval.NewHandler(logger, approvalService)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService)

	viewEngine, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	receiptHandler := report.NewHandler(logger, report.NewClient(cfg.GotenbergURL), viewEngine, handoverService)

	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("report cache listener", slog.Any("error", err))
	}
	reportingService := reporting.NewService(custodyService, journalService, handoverService, reportCache)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	// Reconcile rides the full reporting stack, so it dispatches after wiring.
	if len(os.Args) > 1 && os.Args[1] == "reconcile" {
		opsCLI, err := cli.NewOpsCLI(reportingService)
		if err != nil {
			logger.Error("reconcile cli", slog.Any("error", err))
			os.Exit(1)
		}
		opts := cli.ReconcileOptions{}
		for _, arg := range os.Args[2:] {
			if arg == "--json" {
				opts.JSONOutput = true
			}
		}
		os.Exit(opsCLI.ReconcileCommand(ctx, opts))
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authenticator := auth.NewAuthenticator(logger, authService, resolver, cfg.AuthDisabled)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Authenticator:    authenticator,
		CustodyHandler:   custodyHandler,
		HandoverHandler:  handoverHandler,
		ApprovalHandler:  approvalHandler,
		ReportingHandler: reportingHandler,
		AuditHandler:     auditHandler,
		ReceiptHandler:   receiptHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
