package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/config"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/handler"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
	"github.com/prperemyshlev/storefront-auth/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	serviceName     = "storefront-auth"
	shutdownTimeout = 5 * time.Second
)

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	janitor *service.Janitor
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()

	codec, err := fieldcrypt.NewCodec(cfg.Encryption.Key, cfg.Encryption.Salt, fieldcrypt.DefaultSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize field encryption: %w", err)
	}

	var (
		store   ratelimit.Store
		sweeper service.Sweeper
	)
	if cfg.RateLimit.Backend == "redis" {
		store = ratelimit.NewRedisStore(infra.Redis().Client)
	} else {
		memory := ratelimit.NewMemoryStore()
		store, sweeper = memory, memory
	}

	limiter, err := ratelimit.NewLimiter(store, ratelimit.DefaultPolicies(), nil, logger.Named("ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	var mailer mail.Mailer
	if cfg.Mail.Transport == "redis" {
		mailer = mail.NewRedisOutboxMailer(infra.Redis().Client, cfg.Mail.OutboxKey, cfg.Mail.From)
	} else {
		mailer = mail.NewLogMailer(cfg.Mail.From, logger.Named("mail"))
	}

	metrics, err := observability.NewAuthMetrics(infra.MeterProvider().Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	repos := repository.NewRepositories(infra.Postgres(), cfg.TwoFactor.Store)

	verifier, err := service.NewCredentialVerifier(repos.User, codec, cfg.Security.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential verifier: %w", err)
	}

	deps := service.Dependencies{
		Repos:     repos,
		Codec:     codec,
		Tokens:    utils.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiry.Duration, cfg.JWT.Issuer),
		Limiter:   limiter,
		Verifier:  verifier,
		TwoFactor: service.NewTwoFactorManager(repos.TwoFactor, limiter, mailer, cfg.TwoFactor.CodeTTL.Duration, logger.Named("2fa")),
		Authority: service.NewAdminAuthority(repos.User, logger.Named("admin")),
		Projector: service.NewProjector(cfg.Encryption.Key),
		Mailer:    mailer,
		Metrics:   metrics,
		Logger:    logger,
	}

	authService := service.NewAuthService(deps, service.Options{
		TwoFactorRequiredForAdmins: cfg.TwoFactor.RequiredForAdmins,
		PasswordResetTTL:           cfg.Tokens.PasswordResetTTL.Duration,
		EmailVerificationTTL:       cfg.Tokens.EmailVerificationTTL.Duration,
		AppBaseURL:                 cfg.Tokens.AppBaseURL,
		BCryptCost:                 cfg.Security.BCryptCost,
	})
	adminService := service.NewAdminService(deps)

	cookies := handler.NewAuthCookies(handler.CookieOptions{
		Name:        cfg.Cookie.Name,
		Domain:      cfg.Cookie.Domain,
		Path:        cfg.Cookie.Path,
		Secure:      cfg.Cookie.Secure,
		SameSite:    handler.ParseSameSite(cfg.Cookie.SameSite),
		LegacyNames: cfg.Cookie.LegacyNames,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	router.GET("/metrics", observability.PrometheusHandler(infra.MetricsHandler()))
	router.GET("/health", NewHealthChecker(infra).Handler)

	api := router.Group("/api/v1")
	handler.NewAuthHandler(authService, cookies, logger).RegisterRoutes(api.Group("/auth"))
	handler.NewAdminHandler(authService, adminService, limiter, cookies, logger).RegisterRoutes(api.Group("/admin"))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		janitor: service.NewJanitor(sweeper, repos, cfg.RateLimit.SweepInterval.Duration, logger.Named("janitor")),
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.janitor.Run(janitorCtx)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
			zap.String("rate_limit_backend", a.config.RateLimit.Backend),
			zap.String("two_factor_store", a.config.TwoFactor.Store),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopJanitor()

	if err := a.Shutdown(); err != nil {
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Drain requests before closing the pools they use.
	serverErr := a.server.Shutdown(ctx)
	infraErr := a.infra.Shutdown(ctx)

	if err := errors.Join(serverErr, infraErr); err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
