/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pension readjustment (liquidador) server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file, then environment, then flags)
  2. Initialize logger
  3. Initialize SQLite store
  4. Build statutory table registry and sync it with the store
  5. Create API handler with dependencies
  6. Start the statutory table file watcher, if configured
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LIQUIDADOR_ADDR)
  -db      SQLite database path (overrides LIQUIDADOR_DB)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the table watcher and close the database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/liquidador.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Pick up the yearly CPI and minimum wage table from a file
  LIQUIDADOR_INDEX_FILE=/etc/liquidador/index.yaml ./server

ENVIRONMENT:
  See config/config.go. LIQUIDADOR_CONFIG names an optional YAML file.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/liquidador/api"
	"github.com/warp/liquidador/batch"
	"github.com/warp/liquidador/config"
	"github.com/warp/liquidador/logging"
	"github.com/warp/liquidador/statutory"
	"github.com/warp/liquidador/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()
	if *port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("db", cfg.DBPath), zap.Error(err))
	}
	defer store.Close()

	// Statutory tables: embedded reference plus whatever was archived before
	indexes := statutory.DefaultRegistry()
	runner := batch.NewRunner(cfg.BatchConcurrency, cfg.BatchTimeout, logger)
	handler := api.NewHandler(store, indexes, runner, logger)
	if err := handler.SyncIndexTables(context.Background()); err != nil {
		logger.Fatal("failed to sync statutory tables", zap.Error(err))
	}

	var watcher *api.IndexScheduler
	if cfg.IndexFile != "" {
		watcher = api.NewIndexScheduler(handler, cfg.IndexFile)
		watcher.CheckInterval = cfg.IndexReload
		watcher.Start()
	}

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins...)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath),
			zap.String("index_version", indexes.Latest().Version()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if watcher != nil {
		watcher.Stop()
	}

	logger.Info("server stopped")
}
