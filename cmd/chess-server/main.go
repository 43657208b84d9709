package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/howard36/3d-chess/internal/archive"
	appcfg "github.com/howard36/3d-chess/internal/config"
	"github.com/howard36/3d-chess/internal/coordinator"
	"github.com/howard36/3d-chess/internal/game"
	"github.com/howard36/3d-chess/internal/msgcat"
	"github.com/howard36/3d-chess/internal/obslog"
	"github.com/howard36/3d-chess/internal/server"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	catalog, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	// Archive is Postgres when configured, in-memory otherwise. Live
	// session state is process memory either way.
	repo := archive.NewMemory()
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		logger.Info("archive_postgres_enabled")
	}

	registry := game.NewRegistry()
	coord := coordinator.New(registry, catalog, repo, logger)
	srv := server.New(cfg, coord, registry, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("server_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server_error", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server_shutdown_error", zap.Error(err))
	}
	_ = repo.Close()
}
