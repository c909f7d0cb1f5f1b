/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the field-ops workflow server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize the store (SQLite, or in-memory with -db=mem)
  3. Create API handler with dependencies
  4. Optionally load the demo scenario (-seed)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env FIELDOPS_PORT)
  -db      SQLite database path (default: fieldops.db, env FIELDOPS_DB)
           Use ":memory:" for in-memory SQLite, "mem" for the map store
  -seed    Load the field-day demo scenario on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/fieldops.db"
  ./server -db=mem -seed
  FIELDOPS_LOG_LEVEL=debug ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/api"
	"github.com/warp/field-ops/config"
	"github.com/warp/field-ops/store/memory"
	"github.com/warp/field-ops/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.NewLogger()

	// Initialize store
	var backend api.Backend
	if cfg.DBPath == config.MemoryDB {
		backend = memory.NewMemory()
	} else {
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()
		backend = store
	}

	// Initialize handler
	handler := api.NewHandler(backend, logger)
	handler.Ledger.Week = cfg.Week()
	handler.Ledger.OvertimeThreshold = cfg.OvertimeThreshold

	if cfg.Seed {
		if err := handler.LoadScenarioByID(context.Background(), api.DefaultScenario); err != nil {
			logger.WithError(err).Warn("Failed to load demo scenario")
		}
	}

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":       cfg.Port,
			"db":         cfg.DBPath,
			"week_start": cfg.WeekStart.String(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Info("Server stopped")
}
