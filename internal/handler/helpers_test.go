package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository/repotest"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword  = "Password123"
	testOutboxKey = "mail:outbox"
)

var sharedCodec *fieldcrypt.Codec

type testServer struct {
	router *gin.Engine
	users  *repotest.Users
	codec  *fieldcrypt.Codec
	tokens *utils.TokenService
	outbox *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if sharedCodec == nil {
		c, err := fieldcrypt.NewCodec("test-encryption-key-that-is-at-least-32-chars", "salt", fieldcrypt.DefaultSchema())
		require.NoError(t, err)
		sharedCodec = c
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicies(), nil, logger)
	require.NoError(t, err)

	users := repotest.NewUsers()
	repos := repotest.Repositories(users, repotest.NewTokens(), repotest.NewTokens())
	mailer := mail.NewRedisOutboxMailer(client, testOutboxKey, "no-reply@shop.test")
	tokens := utils.NewTokenService("test-secret-key-that-is-at-least-32-characters-long", time.Hour, "storefront-test")

	verifier, err := service.NewCredentialVerifier(users, sharedCodec, bcrypt.MinCost)
	require.NoError(t, err)

	deps := service.Dependencies{
		Repos:     repos,
		Codec:     sharedCodec,
		Tokens:    tokens,
		Limiter:   limiter,
		Verifier:  verifier,
		TwoFactor: service.NewTwoFactorManager(repos.TwoFactor, limiter, mailer, 10*time.Minute, logger),
		Authority: service.NewAdminAuthority(users, logger),
		Projector: service.NewProjector("projection-key"),
		Mailer:    mailer,
		Logger:    logger,
	}
	authService := service.NewAuthService(deps, service.Options{
		TwoFactorRequiredForAdmins: true,
		AppBaseURL:                 "https://shop.test",
		BCryptCost:                 bcrypt.MinCost,
	})
	adminService := service.NewAdminService(deps)

	cookies := NewAuthCookies(CookieOptions{
		Name:        "auth_token",
		Path:        "/",
		Secure:      true,
		SameSite:    http.SameSiteStrictMode,
		LegacyNames: []string{"token", "admin_token"},
	})

	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://shop.test"}, []string{"GET", "POST"}, []string{"Content-Type"}))
	api := router.Group("/api/v1")
	NewAuthHandler(authService, cookies, logger).RegisterRoutes(api.Group("/auth"))
	NewAdminHandler(authService, adminService, limiter, cookies, logger).RegisterRoutes(api.Group("/admin"))

	return &testServer{router: router, users: users, codec: sharedCodec, tokens: tokens, outbox: mr}
}

func (s *testServer) seedUser(t *testing.T, email string, isAdmin, verified bool) int64 {
	t.Helper()
	hash, err := utils.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	row := domain.Row{
		"email":         email,
		"password_hash": hash,
		"name":          "Test User",
		"is_admin":      isAdmin,
		"is_active":     true,
	}
	if verified {
		row["email_verified_at"] = time.Now()
	}
	row, err = s.codec.EncryptRow("users", row)
	require.NoError(t, err)

	id, err := s.users.Create(context.Background(), row)
	require.NoError(t, err)
	return id
}

func (s *testServer) sessionToken(t *testing.T, id int64, isAdmin bool) string {
	t.Helper()
	token, _, err := s.tokens.Generate(domain.SessionClaims{
		UserID:        id,
		Email:         "someone@shop.test",
		EmailVerified: true,
		IsAdmin:       isAdmin,
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) lastMail(t *testing.T) mail.Message {
	t.Helper()
	items, err := s.outbox.List(testOutboxKey)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	var msg mail.Message
	require.NoError(t, json.Unmarshal([]byte(items[0]), &msg))
	return msg
}

type requestOption func(*http.Request)

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withIP(ip string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = ip + ":40000" }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func (s *testServer) do(method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:40000"
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
