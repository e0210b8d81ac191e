/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the inventory ledger HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, then environment)
  2. Build the zap logger
  3. Open the store (SQLite or MySQL)
  4. Attach entry publishers (Redis stream, MongoDB archive) when configured
  5. Build the mutator, service and API handler
  6. Start the low-stock scheduler (unless LEDGER_LOW_STOCK_ENABLED=false)
  7. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     Path to a .env file (default: .env, missing file is fine)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close publishers and the database connection

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/api"
	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/importer"
	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/logger"
	"github.com/warp/inventory-ledger/notify"
	"github.com/warp/inventory-ledger/scheduler"
	"github.com/warp/inventory-ledger/store/mysql"
	"github.com/warp/inventory-ledger/store/sqlite"
)

type closableStore interface {
	ledger.Store
	Close() error
}

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.LogLevel))
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store ready", zap.String("driver", cfg.Database.Driver))

	publisher, closePublishers, err := notify.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePublishers()

	mutatorCfg := cfg.Ledger.MutatorConfig()
	mutatorCfg.Publisher = publisher
	mutatorCfg.Logger = logger.Named(log, "mutator")
	mutator := ledger.NewMutator(store, mutatorCfg)
	svc := ledger.NewService(store, mutator, nil, logger.Named(log, "ledger"))

	handler := api.NewHandler(svc, logger.Named(log, "http"))
	handler.LowStockThreshold = cfg.Alerts.Threshold
	if cfg.Sheets.CredentialsPath != "" {
		sheets, err := importer.NewSheetSource(ctx, cfg.Sheets.CredentialsPath, logger.Named(log, "sheets"))
		if err != nil {
			return fmt.Errorf("init sheets: %w", err)
		}
		handler.Sheets = sheets
	}

	var alerter notify.Alerter = notify.LogAlerter{Logger: logger.Named(log, "alerts")}
	if cfg.Alerts.WebhookURL != "" {
		alerter = notify.NewWebhookAlerter(cfg.Alerts.WebhookURL)
	}
	sched := scheduler.New(svc, alerter, logger.Named(log, "scheduler"))
	sched.Schedule = cfg.Alerts.CronSchedule
	sched.Threshold = cfg.Alerts.Threshold
	sched.Enabled = cfg.Alerts.Enabled
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (closableStore, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.New(ctx, cfg.DSN)
	default:
		return sqlite.New(cfg.DSN)
	}
}
