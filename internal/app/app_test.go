package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prperemyshlev/storefront-auth/internal/config"
	"github.com/prperemyshlev/storefront-auth/pkg/database"
	"github.com/prperemyshlev/storefront-auth/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

type fakeInfrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

func (f *fakeInfrastructure) Postgres() *database.Postgres {
	return f.postgres
}

func (f *fakeInfrastructure) Redis() *database.Redis {
	return f.redis
}

func (f *fakeInfrastructure) Logger() *zap.Logger {
	return zap.NewNop()
}

func (f *fakeInfrastructure) MetricsHandler() http.Handler {
	return f.metricsHandler
}

func (f *fakeInfrastructure) MeterProvider() *metric.MeterProvider {
	return f.meterProvider
}

func (f *fakeInfrastructure) Shutdown(ctx context.Context) error {
	_ = f.postgres.Close()
	_ = f.redis.Close()
	return f.meterProvider.Shutdown(ctx)
}

func newFakeInfrastructure(t *testing.T) *fakeInfrastructure {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mp, handler, err := observability.InitTelemetry("storefront-auth-test")
	require.NoError(t, err)

	infra := &fakeInfrastructure{
		postgres:       &database.Postgres{DB: sqlx.NewDb(db, "postgres")},
		redis:          &database.Redis{Client: client},
		metricsHandler: handler,
		meterProvider:  mp,
	}
	t.Cleanup(func() { _ = infra.Shutdown(context.Background()) })
	return infra
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           "0",
			ReadTimeout:    config.Duration{Duration: 5 * time.Second},
			WriteTimeout:   config.Duration{Duration: 5 * time.Second},
			TrustedProxies: []string{"127.0.0.1"},
		},
		JWT:        config.JWTConfig{Secret: "test-secret-key-that-is-at-least-32-characters-long", Expiry: config.Duration{Duration: time.Hour}, Issuer: "storefront-test"},
		Cookie:     config.CookieConfig{Name: "auth_token", Path: "/", Secure: true, SameSite: "strict"},
		Encryption: config.EncryptionConfig{Key: "test-encryption-key-that-is-at-least-32-chars", Salt: "salt"},
		TwoFactor:  config.TwoFactorConfig{CodeTTL: config.Duration{Duration: 10 * time.Minute}, RequiredForAdmins: true, Store: "memory"},
		RateLimit:  config.RateLimitConfig{Backend: "redis", SweepInterval: config.Duration{Duration: time.Minute}},
		Tokens:     config.TokensConfig{AppBaseURL: "https://shop.test"},
		Mail:       config.MailConfig{Transport: "redis", OutboxKey: "mail:outbox", From: "no-reply@shop.test"},
		Security:   config.SecurityConfig{BCryptCost: 4},
		CORS:       config.CORSConfig{AllowedOrigins: []string{"https://shop.test"}, AllowedMethods: []string{"GET", "POST"}, AllowedHeaders: []string{"Content-Type"}},
		Env:        "test",
	}
}

func TestNewApp_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	infra := newFakeInfrastructure(t)

	a, err := NewApp(infra, testConfig())
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/verify", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/users", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.Router().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestNewApp_RejectsInvalidTrustedProxies(t *testing.T) {
	infra := newFakeInfrastructure(t)
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	_, err := NewApp(infra, cfg)
	assert.Error(t, err)
}

func TestHealthChecker_ReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	infra := newFakeInfrastructure(t)
	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = down.Close() })
	infra.redis = &database.Redis{Client: down}

	router := gin.New()
	router.GET("/health", NewHealthChecker(infra).Handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "fail", body.Status)
	assert.Contains(t, body.Checks, "redis")
	assert.NotContains(t, body.Checks, "postgres")
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	infra := newFakeInfrastructure(t)

	a, err := NewApp(infra, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
