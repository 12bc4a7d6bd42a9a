package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/app"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/observability"
	platformdb "github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/jobs"
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

	pool, err := platformdb.New(ctx, cfg.PGDSN, platformdb.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	integrity := jobs.NewIntegrityChecker(pool, logger, metrics)
	varianceScan := jobs.NewVarianceScanner(pool, logger, metrics)
	expiryScan := jobs.NewExpiryScanner(inventory.NewRepository(pool), logger, metrics)
	retention := jobs.NewEventRetention(pool, cfg.MoneyEventRetention, logger, metrics)

	allChannels := jobs.ChannelPayload{}
	cron := make([]jobs.CronRegistration, 0, 4)
	for _, entry := range []struct {
		spec string
		task string
	}{
		{"15 1 * * *", jobs.TaskLedgerIntegrity},
		{"30 1 * * *", jobs.TaskVarianceScan},
		{"45 1 * * *", jobs.TaskExpiryScan},
		{"0 2 * * 0", jobs.TaskEventRetention},
	} {
		task, err := jobs.NewChannelTask(entry.task, allChannels)
		if err != nil {
			logger.Error("build cron task", slog.String("task", entry.task), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    entry.spec,
			Task:    task,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrity.Handler()},
			{Type: jobs.TaskVarianceScan, Handler: varianceScan.Handler()},
			{Type: jobs.TaskExpiryScan, Handler: expiryScan.Handler()},
			{Type: jobs.TaskEventRetention, Handler: retention.Handler()},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
