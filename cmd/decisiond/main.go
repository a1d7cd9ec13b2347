// decisiond - Collections decisioning that deploys in 60 seconds.
// Copyright (c) 2025 rguerramena-source
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rguerramena-source/decision-api/internal/api"
	"github.com/rguerramena-source/decision-api/internal/batch"
	"github.com/rguerramena-source/decision-api/internal/bus"
	"github.com/rguerramena-source/decision-api/internal/cache"
	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/engine"
	"github.com/rguerramena-source/decision-api/internal/repository"
	"github.com/rguerramena-source/decision-api/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DECISION_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting decisiond",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster mode via environment
	if os.Getenv("DECISION_CLUSTER") == "true" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}

	cfg.Auth.APIKey = os.Getenv("DECISION_API_KEY")
	if cfg.Auth.APIKey == "" {
		slog.Warn("DECISION_API_KEY not set - API authentication disabled")
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Policy Engine
	policies, err := engine.NewPolicyEngine()
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Load policies from database (no hardcoded defaults - configure via API)
	if err := loadPoliciesFromDatabase(ctx, repo, policies); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policies.Count())

	// Initialize decision engine and batch orchestrator
	orchestrator := batch.New(engine.NewWithPolicies(policies), 0)
	slog.Info("decision engine initialized", "mode", cfg.Engine.Mode)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.EventBus.Type == "nats" || os.Getenv("DECISION_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, orchestrator, cfg.Engine)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg, repo, cacheImpl, busImpl, policies, orchestrator, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("decisiond is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("decisiond shutdown complete")
}

// loadPoliciesFromDatabase loads stop policies from the database into the
// engine. All policies must be configured via POST /policies API.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, policies *engine.PolicyEngine) error {
	dbPolicies, err := repo.ListPolicies(ctx)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start with empty policies - they can be added via API
	}

	if len(dbPolicies) > 0 {
		slog.Info("loading policies from database", "count", len(dbPolicies))
		return policies.LoadAll(dbPolicies)
	}

	slog.Info("no policies in database - configure via POST /policies API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ============================================")
	fmt.Println("                 DECISIOND")
	fmt.Println("       Collections Decision Engine")
	fmt.Println("     Every delinquent loan, every day.")
	fmt.Println("  ============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /decide                     - Decide a portfolio")
	fmt.Println("    GET  /decisions/{loan_id}        - Latest decision for a loan")
	fmt.Println("    GET  /loans/{loan_id}/transactions - Attempt history")
	fmt.Println("    GET  /policies                   - List stop policies")
	fmt.Println("    POST /policies                   - Create a stop policy")
	fmt.Println("    DELETE /policies/{id}            - Delete a stop policy")
	fmt.Println("    POST /policies/reload            - Hot-reload policies")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}
