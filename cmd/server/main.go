package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ruralpay/ledger/docs"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store"
)

// @title Ledger Transfer API
// @version 1.0
// @description Atomic fund transfers, idempotent replays and paginated account history
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(startCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connection established", zap.String("host", cfg.Database.Host))

	if cfg.RunMigrations {
		if err := database.Migrate(startCtx, db); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisClient := database.OpenRedis(startCtx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	st := store.NewPostgres(db, cfg.LockTimeout)
	ids := services.NewIdentifierGenerator(cfg.ReferencePrefix)
	reservations := services.NewReservationService(st, cfg.ReservationTTL)
	ledger := services.NewDoubleLedgerService(st)
	executor := services.NewTransferExecutor(st, reservations, ledger, logger)
	guard := services.NewIdempotencyGuard(st, redisClient, cfg.IdempotencyCacheTTL, logger)

	routerCfg := handlers.RouterConfig{
		Transfers: services.NewTransferService(st, executor, guard, ids, audit.NewLogger(logger), logger),
		Accounts:  services.NewAccountService(st, ids, logger),
		History:   services.NewHistoryService(st, ledger, reservations),
		Database:  db,
		Logger:    logger,
	}
	if cfg.AuthEnabled {
		routerCfg.JWTSecret = cfg.JWTSecret
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.Bool("auth", cfg.AuthEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("server shutting down")
	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
