package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prperemyshlev/storefront-auth/internal/app"
	"github.com/prperemyshlev/storefront-auth/internal/config"
	"github.com/prperemyshlev/storefront-auth/internal/migrations"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}

	if cfg.Postgres.MigrateOnStart {
		if err := migrations.Up(cfg.Postgres.URL()); err != nil {
			infra.Logger().Fatal("Failed to apply migrations", zap.Error(err))
		}
		infra.Logger().Info("Database schema is up to date")
	}

	application, err := app.NewApp(infra, cfg)
	if err != nil {
		infra.Logger().Fatal("Failed to build application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		infra.Logger().Info("Received shutdown signal")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		infra.Logger().Fatal("Application failed", zap.Error(err))
	}
}
