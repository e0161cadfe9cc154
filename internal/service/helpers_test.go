package service

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository/repotest"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testJWTSecret     = "test-secret-key-that-is-at-least-32-characters-long"
	testEncryptionKey = "test-encryption-key-that-is-at-least-32-chars"
	testPassword      = "Password123"
	outboxKey         = "mail:outbox"
)

var testCodec *fieldcrypt.Codec

func codecForTest(t *testing.T) *fieldcrypt.Codec {
	t.Helper()
	if testCodec == nil {
		c, err := fieldcrypt.NewCodec(testEncryptionKey, "test-salt", fieldcrypt.DefaultSchema())
		require.NoError(t, err)
		testCodec = c
	}
	return testCodec
}

type testEnv struct {
	users         *repotest.Users
	resets        *repotest.Tokens
	verifications *repotest.Tokens
	deps          Dependencies
	auth          AuthService
	admin         AdminService
	outbox        *miniredis.Miniredis
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultPolicies(), nil, zap.NewNop())
	require.NoError(t, err)

	codec := codecForTest(t)
	users := repotest.NewUsers()
	resets := repotest.NewTokens()
	verifications := repotest.NewTokens()
	repos := repotest.Repositories(users, resets, verifications)
	mailer := mail.NewRedisOutboxMailer(client, outboxKey, "no-reply@shop.test")

	verifier, err := NewCredentialVerifier(users, codec, bcrypt.MinCost)
	require.NoError(t, err)

	deps := Dependencies{
		Repos:     repos,
		Codec:     codec,
		Tokens:    utils.NewTokenService(testJWTSecret, time.Hour, "storefront-test"),
		Limiter:   limiter,
		Verifier:  verifier,
		TwoFactor: NewTwoFactorManager(repos.TwoFactor, limiter, mailer, 10*time.Minute, zap.NewNop()),
		Authority: NewAdminAuthority(users, zap.NewNop()),
		Projector: NewProjector(testEncryptionKey),
		Mailer:    mailer,
		Logger:    zap.NewNop(),
	}

	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.MinCost
	}
	if opts.AppBaseURL == "" {
		opts.AppBaseURL = "https://shop.test"
	}

	return &testEnv{
		users:         users,
		resets:        resets,
		verifications: verifications,
		deps:          deps,
		auth:          NewAuthService(deps, opts),
		admin:         NewAdminService(deps),
		outbox:        mr,
	}
}

type seedOptions struct {
	admin      bool
	inactive   bool
	unverified bool
	twoFactor  bool
	plaintext  bool
}

// seedUser stores a user with encrypted PII and returns its id
func (e *testEnv) seedUser(t *testing.T, email string, so seedOptions) int64 {
	t.Helper()

	hash, err := utils.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	row := domain.Row{
		"email":              email,
		"password_hash":      hash,
		"name":               "Maria Silva",
		"phone":              "+55 11 99999-0000",
		"cpf":                "",
		"address":            nil,
		"is_admin":           so.admin,
		"is_active":          !so.inactive,
		"two_factor_enabled": so.twoFactor,
	}
	if !so.unverified {
		row["email_verified_at"] = time.Now().Add(-time.Hour)
	}
	if !so.plaintext {
		row, err = e.deps.Codec.EncryptRow("users", row)
		require.NoError(t, err)
	}

	id, err := e.users.Create(context.Background(), row)
	require.NoError(t, err)
	return id
}

// lastMail returns the newest message pushed to the outbox
func (e *testEnv) lastMail(t *testing.T) mail.Message {
	t.Helper()
	items, err := e.outbox.List(outboxKey)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	var msg mail.Message
	require.NoError(t, json.Unmarshal([]byte(items[0]), &msg))
	return msg
}

func (e *testEnv) mailCount() int {
	if !e.outbox.Exists(outboxKey) {
		return 0
	}
	items, _ := e.outbox.List(outboxKey)
	return len(items)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func reqInfo(ip string) ratelimit.RequestInfo {
	return ratelimit.RequestInfo{IP: ip, UserAgent: "test-agent", Path: "/test"}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	se := AsError(err)
	require.Equal(t, kind, se.Kind, "error: %v", err)
	return se
}
