/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Detofa points engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize the SQLite store
  3. Wire the auth service and the transfer/rewards/scores engines
  4. Configure the HTTP router
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: detofa.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  JWT_SECRET         required; HMAC key for bearer tokens
  TOKEN_EXPIRE_TIME  optional Go duration ("720h"); empty or "never"
                     means tokens do not expire
  LOG_LEVEL          optional logrus level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database connection
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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/detofa/points-engine/api"
	"github.com/detofa/points-engine/auth"
	"github.com/detofa/points-engine/rewards"
	"github.com/detofa/points-engine/scores"
	"github.com/detofa/points-engine/store/sqlite"
	"github.com/detofa/points-engine/transfer"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "detofa.db", "SQLite database path")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}
	ttl := parseTokenTTL(os.Getenv("TOKEN_EXPIRE_TIME"), logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire engines
	tokens := auth.NewTokens(secret, ttl)
	authSvc := auth.NewService(store, tokens)
	transfers := transfer.NewEngine(store, transfer.DefaultPolicy())
	rewardsEng := rewards.NewEngine(store)
	scoresEng := scores.NewEngine(store)

	handler := api.NewHandler(store, authSvc, transfers, rewardsEng, scoresEng, logger)
	router := api.NewRouter(handler, tokens, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

// parseTokenTTL interprets TOKEN_EXPIRE_TIME. Empty, "0", or "never" means
// tokens do not expire.
func parseTokenTTL(raw string, logger *logrus.Logger) time.Duration {
	if raw == "" || raw == "0" || raw == "never" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Fatalf("failed to parse TOKEN_EXPIRE_TIME: %v", err)
	}
	return d
}
