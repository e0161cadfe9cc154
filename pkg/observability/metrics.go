package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// AuthMetrics counts security-relevant auth events
type AuthMetrics struct {
	logins          metric.Int64Counter
	rateLimited     metric.Int64Counter
	twoFactor       metric.Int64Counter
	adminDenied     metric.Int64Counter
	decryptFailures metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	m := &AuthMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.logins, "auth_login_total", "Login attempts by result"},
		{&m.rateLimited, "auth_rate_limited_total", "Requests rejected by the rate limiter by action class"},
		{&m.twoFactor, "auth_two_factor_total", "Two-factor code events"},
		{&m.adminDenied, "auth_admin_denied_total", "Admin authorization denials by reason"},
		{&m.decryptFailures, "auth_decrypt_failures_total", "Field decryption failures by table"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	return m, nil
}

// NewNoopAuthMetrics returns metrics that record nothing
func NewNoopAuthMetrics() *AuthMetrics {
	m, _ := NewAuthMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *AuthMetrics) Login(ctx context.Context, result string) {
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) RateLimited(ctx context.Context, class string) {
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

func (m *AuthMetrics) TwoFactor(ctx context.Context, event string) {
	m.twoFactor.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *AuthMetrics) AdminDenied(ctx context.Context, reason string) {
	m.adminDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) DecryptFailure(ctx context.Context, table string) {
	m.decryptFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}
