/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize the store (SQLite by default, MongoDB when -mongo is set)
  3. Load the account registry
  4. Create API handler with the engine stack
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: ledger.db)
            Use ":memory:" for an in-memory database
  -mongo    MongoDB connection URI; when set, MongoDB replaces SQLite
  -mongodb  MongoDB database name (default: ledger)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run against MongoDB
  ./server -mongo="mongodb://localhost:27017"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Default database implementation
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

	"github.com/tripledger/ledger-engine/api"
	"github.com/tripledger/ledger-engine/internal/logging"
	"github.com/tripledger/ledger-engine/ledger"
	"github.com/tripledger/ledger-engine/store/mongo"
	"github.com/tripledger/ledger-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	mongoURI := flag.String("mongo", "", "MongoDB connection URI (overrides -db)")
	mongoDB := flag.String("mongodb", "ledger", "MongoDB database name")
	flag.Parse()

	ctx := context.Background()
	logger := logging.New("ledger-server", nil)

	// Initialize store
	var (
		store   ledger.TxStore
		cleanup func()
	)
	if *mongoURI != "" {
		ms, err := mongo.New(ctx, *mongoURI, *mongoDB)
		if err != nil {
			logger.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		store = ms
		cleanup = func() { ms.Close(context.Background()) }
	} else {
		ss, err := sqlite.New(*dbPath)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		store = ss
		cleanup = func() { ss.Close() }
	}
	defer cleanup()

	// Load the account registry from persisted configuration
	registry, err := ledger.LoadRegistry(ctx, store)
	if err != nil {
		logger.Error("failed to load account registry", "error", err)
		os.Exit(1)
	}
	logger.Info("account registry loaded", "accounts", len(registry.Accounts()))

	// Initialize handler and router
	handler := api.NewHandler(store, registry)
	router := api.NewRouter(handler)

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
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
