package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/storefront-auth/internal/config"
	"github.com/prperemyshlev/storefront-auth/pkg/database"
	"github.com/prperemyshlev/storefront-auth/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

// NewInfrastructure connects to the stores and starts telemetry. On failure
// anything already opened is closed again.
func NewInfrastructure(ctx context.Context, cfg config.Config) (_ *infrastructure, err error) {
	i := &infrastructure{}
	defer func() {
		if err != nil {
			i.closeStores()
		}
	}()

	i.logger, err = observability.InitLogger(observability.LoggerOptions{
		Env:    cfg.Env,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		MaxAge: cfg.Log.MaxAge.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	i.postgres, err = database.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	i.redis, err = database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	i.meterProvider, i.metricsHandler, err = observability.InitTelemetry(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	i.logger.Info("Infrastructure ready",
		zap.String("postgres", cfg.Postgres.Host+":"+cfg.Postgres.Port),
		zap.String("redis", cfg.Redis.Address()),
	)

	return i, nil
}

func (i *infrastructure) closeStores() {
	if i.postgres != nil {
		_ = i.postgres.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 3)

	go func() { errs <- i.postgres.Close() }()
	go func() { errs <- i.redis.Close() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	err := errors.Join(<-errs, <-errs, <-errs)
	_ = i.logger.Sync()
	return err
}
