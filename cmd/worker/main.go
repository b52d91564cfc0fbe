package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/finreport/internal/app"
	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/observability"
	"github.com/odyssey-erp/finreport/internal/platform/cache"
	"github.com/odyssey-erp/finreport/internal/platform/db"
	"github.com/odyssey-erp/finreport/jobs"
	"github.com/odyssey-erp/finreport/report"
)

// metricsAddr exposes the worker's job metrics for scraping.
const metricsAddr = ":9091"

func main() {
	_ = godotenv.Load()
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: int32(cfg.WorkerConcurrency) + 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// generation still works without the dataset cache
		logger.Warn("redis unavailable, ledger cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	source, closer, err := app.NewLedgerSource(cfg, redisClient, logger)
	if err != nil {
		logger.Error("init ledger source", slog.Any("error", err))
		os.Exit(1)
	}
	defer closer.Close()

	repo := finreport.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	service := finreport.NewService(repo, nil)

	var converter finreport.Converter
	if cfg.RenderPDF {
		converter = report.NewClient(cfg.GotenbergURL, report.WithTimeout(cfg.GotenbergTimeout))
	}
	generator := finreport.NewGenerator(finreport.GeneratorConfig{
		Source:    source,
		Store:     finreport.NewFileStore(cfg.TemplateDir, cfg.ReportStorageDir),
		Converter: converter,
		Workers:   cfg.AggregateWorkers,
		Logger:    logger,
	})

	metrics := observability.NewMetrics()
	job := finreport.NewJob(finreport.JobConfig{
		Service:   service,
		Generator: generator,
		Metrics:   metrics.Jobs(),
		Logger:    logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer queue.Close()
	sweeper := finreport.NewSweeper(service, queue, cfg.SweepGrace, metrics.Jobs(), logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportGenerate, Handler: job.Handle},
			{Type: jobs.TaskReportSweep, Handler: sweeper.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepSchedule, Task: jobs.NewReportSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
