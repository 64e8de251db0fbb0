/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Configure logging
  3. Initialize SQLite store
  4. Create loan service, handler and router
  5. Start the reprocess scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port      HTTP server port (PORT, default: 8080)
  -db        SQLite database path (DB_PATH, default: loans.db)
             Use ":memory:" for in-memory database
  -schedule  Reprocess cron spec (REPROCESS_SCHEDULE, default: "0 2 * * *")
             Empty disables scheduled reprocessing
  -reset     Drop all stored loans before starting

ENVIRONMENT:
  See config/config.go. LOG_LEVEL, LOG_FORMAT, CORS_ORIGINS and
  DEFAULT_STRATEGY have no flag.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for a running pass
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled reprocessing
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/sirupsen/logrus"
	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/config"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
	"github.com/warp/loan-engine/strategies"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	schedule := flag.String("schedule", cfg.ReprocessSchedule, "Reprocess cron spec (empty disables)")
	reset := flag.Bool("reset", false, "Drop all stored loans before starting")
	flag.Parse()

	log := cfg.NewLogger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	if *reset {
		if err := store.Reset(context.Background()); err != nil {
			log.WithError(err).Fatal("failed to reset database")
		}
		log.Warn("database reset")
	}

	service := loan.NewService(store, strategies.Resolver(
		strategies.WithOverpaymentHook(func(tx *loan.Transaction, amount loan.Money) {
			log.WithFields(logrus.Fields{
				"transaction_id": tx.ID,
				"date":           tx.Date.String(),
				"overpayment":    amount.String(),
			}).Info("overpayment")
		}),
	), log)

	handler := api.NewHandler(service, factory.NewLoanFactory(cfg.DefaultStrategy), log)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewReprocessScheduler(service, log)
	scheduler.Schedule = *schedule
	scheduler.Enabled = *schedule != ""
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	scheduler.Stop()

	log.Info("server stopped")
}
