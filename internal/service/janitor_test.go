package service

import (
	"context"
	"testing"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	store := ratelimit.NewMemoryStore()
	_, err := store.Hit(ctx, "k", ratelimit.Policy{Window: time.Minute, MaxAttempts: 1}, now.Add(-time.Hour))
	require.NoError(t, err)

	resets := repotest.NewTokens()
	require.NoError(t, resets.Create(ctx, 1, "old", now.Add(-time.Minute)))
	require.NoError(t, resets.Create(ctx, 2, "fresh", now.Add(time.Hour)))

	repos := repotest.Repositories(repotest.NewUsers(), resets, repotest.NewTokens())
	require.NoError(t, repos.TwoFactor.Create(ctx, &domain.TwoFactorCode{
		UserID:           1,
		SessionTokenHash: "s",
		ExpiresAt:        now.Add(-time.Second),
	}))

	NewJanitor(store, repos, time.Minute, zap.NewNop()).RunOnce(ctx, now)

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, resets.Len())

	n, err := repos.TwoFactor.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJanitor_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		NewJanitor(ratelimit.NewMemoryStore(), nil, 10*time.Millisecond, zap.NewNop()).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
