package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cadentj/interp-workbench/internal/config"
	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/handlers"
	"github.com/cadentj/interp-workbench/internal/jobs"
	"github.com/cadentj/interp-workbench/internal/lens"
	"github.com/cadentj/interp-workbench/internal/notify"
	"github.com/cadentj/interp-workbench/internal/repository"
	"github.com/cadentj/interp-workbench/internal/services"
	"github.com/cadentj/interp-workbench/internal/store"
	"github.com/cadentj/interp-workbench/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	var configFile = flag.String("config", "", "Optional YAML config file to load")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Log startup event
	db.Event("info", "startup", "Server starting", map[string]interface{}{
		"http_addr":   cfg.HTTPAddr,
		"backend_url": cfg.BackendURL,
		"db_path":     cfg.DBPath,
		"models":      cfg.Models,
	})

	// Initialize repository
	repo := repository.NewSQLiteRepository(db)

	// Model registry over the remote introspection backend, loaded lazily
	registry := gateway.NewRegistry(gateway.RemoteLoader(cfg.BackendURL, cfg.BackendTimeout), cfg.Models)

	// Initialize services
	notifier := notify.NewWebhookNotifier(cfg.CallbackTimeout)
	lensService := lens.NewService(registry, notifier, cfg.TopK)
	jobManager := jobs.NewManager(cfg.JobWorkers, cfg.JobTTL, repo)

	// Initialize NATS service
	natsService, err := services.NewNATSService(cfg, lensService, jobManager)
	if err != nil {
		db.Event("error", "nats.failed", "NATS service initialization failed", map[string]interface{}{
			"nats_url": cfg.NatsURL,
			"error":    err.Error(),
		})
		slog.Error("Failed to create NATS service", "error", err)
		os.Exit(1)
	}

	// Start HTTP server
	httpServer := server.NewServer(
		cfg.HTTPAddr,
		handlers.NewLensHandler(lensService, jobManager),
		handlers.NewModelsHandler(registry),
		handlers.NewJobsHandler(repo),
		cfg.AllowedOrigins,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log server ready
	db.Event("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr": cfg.HTTPAddr,
		"nats_url":  cfg.NatsURL,
	})

	// Start all services
	go func() {
		if err := jobManager.Start(ctx); err != nil {
			slog.Error("Job manager failed", "error", err)
		}
	}()

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	go func() {
		if err := natsService.Start(ctx); err != nil {
			db.Event("error", "nats.failed", "NATS service failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("NATS service failed", "error", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("Shutting down server")
}
