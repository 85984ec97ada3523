package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"facegate-worker-go/internal/api"
	"facegate-worker-go/internal/api/handlers"
	"facegate-worker-go/internal/config"
	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(logging.Console())

	// Load configuration
	cfg := config.Load()
	logging.Setup(cfg)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("directory", cfg.DirectoryBackend).
		Str("embedder", cfg.EmbedderBackend).
		Bool("nats_enabled", cfg.NatsEnabled).
		Msg("Starting Facegate Worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := services.NewServiceContainer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create services")
	}
	container.Run(ctx)

	grpcHealth := api.NewHealthServer(cfg.GRPCPort)
	container.Streams.OnStateChange(grpcHealth.SetStreamState)

	checks := make(map[string]handlers.Check)
	for name, check := range container.Healthy() {
		checks[name] = check
	}

	deps := api.Dependencies{
		Streams:       container.Streams,
		Viewer:        container.Display,
		Events:        container.Events,
		EventHistory:  container.AuditLog,
		Gallery:       container.Gallery,
		ReloadGallery: container.ReloadGallery,
		Directory:     container.Directory,
		Checks:        checks,
		Stats:         container.Stats,
	}
	if container.History != nil {
		deps.History = container.History
	}
	server := api.NewServer(cfg, deps)

	// Start servers in goroutines
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()
	go func() {
		if err := grpcHealth.Start(); err != nil {
			log.Error().Err(err).Msg("gRPC health service failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	grpcHealth.Stop()
	// Services first: that ends MJPEG viewers and event websockets, which
	// would otherwise hold the HTTP shutdown open.
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Service shutdown failed")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}
