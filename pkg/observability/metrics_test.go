package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestAuthMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ctx := context.Background()

	m, err := NewAuthMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.Login(ctx, "success")
	m.Login(ctx, "invalid_credentials")
	m.Login(ctx, "invalid_credentials")
	m.RateLimited(ctx, "login")
	m.AdminDenied(ctx, "stale_claim")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok, metric.Name)
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(3), totals["auth_login_total"])
	assert.Equal(t, int64(1), totals["auth_rate_limited_total"])
	assert.Equal(t, int64(1), totals["auth_admin_denied_total"])
	assert.NotContains(t, totals, "auth_two_factor_total")
}

func TestNoopAuthMetrics(t *testing.T) {
	m := NewNoopAuthMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.TwoFactor(context.Background(), "issued")
		m.DecryptFailure(context.Background(), "users")
	})
}

func TestInitLogger_WithRotatingFile(t *testing.T) {
	path := t.TempDir() + "/auth.log"

	logger, err := InitLogger(LoggerOptions{Env: "production", Level: "info", File: path})
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()

	assert.FileExists(t, path)
}
