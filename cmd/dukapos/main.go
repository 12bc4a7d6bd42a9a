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

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/app"
	"github.com/dukapos/dukapos/internal/cashier"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/balances"
	"github.com/dukapos/dukapos/internal/ledger/periods"
	"github.com/dukapos/dukapos/internal/ledger/posting"
	"github.com/dukapos/dukapos/internal/ledger/recon"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/paymethod"
	"github.com/dukapos/dukapos/internal/platform/cache"
	platformdb "github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// closeValidatorFunc lets the period service call into the recon service
// even though the recon service is constructed after it. The binding is
// resolved at call time, never during wiring.
type closeValidatorFunc func(ctx context.Context, channelID int64, start, end time.Time) ([]string, error)

func (f closeValidatorFunc) ValidateClose(ctx context.Context, channelID int64, start, end time.Time) ([]string, error) {
	return f(ctx, channelID, start, end)
}

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

	pool, err := platformdb.New(ctx, cfg.PGDSN, platformdb.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	locker := shared.NewLocker(redisClient, cfg.LockTTL)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, logger)

	balanceCache := balances.NewCache(redisClient, cfg.BalanceCacheTTL)
	balancesRepo := balances.NewRepository(pool)
	balancesService := balances.NewService(balancesRepo, accountsRepo, balanceCache, logger)

	methodsRepo := paymethod.NewRepository(pool)

	cashierRepo := cashier.NewRepository(pool)

	reconRepo := recon.NewRepository(pool)

	periodsRepo := periods.NewRepository(pool)

	postingRepo := posting.NewRepository(pool)

	// The recon service validates period closes; the periods service
	// guards postings. Cashier sits on both sides: it posts variances
	// and reports unresolved sessions to the close validation.
	var reconService *recon.Service
	periodsService := periods.NewService(periodsRepo, closeValidatorFunc(func(ctx context.Context, channelID int64, start, end time.Time) ([]string, error) {
		return reconService.ValidateClose(ctx, channelID, start, end)
	}), locker, logger)

	postingEngine := posting.NewEngine(postingRepo, accountsRepo, periodsService, logger).
		WithInvalidator(balancesService).
		WithRecorder(metrics)

	cashierService := cashier.NewService(cashierRepo, balancesService, postingEngine, methodsRepo,
		decimal.NewFromInt(cfg.VarianceThreshold), logger).WithRecorder(metrics)

	reconService = recon.NewService(reconRepo, balancesService, methodsRepo, cashierService, logger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, postingEngine, periodsService, locker, logger).
		WithRecorder(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  accounts.NewHandler(logger, accountsService),
		PostingHandler:   posting.NewHandler(logger, postingEngine),
		PeriodsHandler:   periods.NewHandler(logger, periodsService),
		BalancesHandler:  balances.NewHandler(logger, balancesService),
		ReconHandler:     recon.NewHandler(logger, reconService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		CashierHandler:   cashier.NewHandler(logger, cashierService),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
