package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	Window:           time.Minute,
	MaxAttempts:      3,
	BlockDuration:    5 * time.Minute,
	MaxBlockDuration: 20 * time.Minute,
	ViolationDecay:   time.Hour,
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func storeCases(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStores_WindowAndBlock(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(1_700_000_000_000)

			for i := 1; i <= 3; i++ {
				res, err := store.Hit(ctx, "k", testPolicy, now)
				require.NoError(t, err)
				assert.True(t, res.Allowed)
				assert.Equal(t, 3-i, res.Remaining)
				assert.WithinDuration(t, now.Add(time.Minute), res.ResetTime, 0)
			}

			res, err := store.Hit(ctx, "k", testPolicy, now)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.True(t, res.Blocked)
			assert.WithinDuration(t, now.Add(5*time.Minute), res.ResetTime, 0)

			res, err = store.Hit(ctx, "k", testPolicy, now.Add(4*time.Minute))
			require.NoError(t, err)
			assert.False(t, res.Allowed, "still blocked")

			res, err = store.Hit(ctx, "k", testPolicy, now.Add(5*time.Minute))
			require.NoError(t, err)
			assert.True(t, res.Allowed, "block elapsed and window rolled")
			assert.Equal(t, 2, res.Remaining)
		})
	}
}

func TestStores_Escalation(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(1_700_000_000_000)
			want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 20 * time.Minute}

			for _, block := range want {
				var res Result
				for {
					var err error
					res, err = store.Hit(ctx, "esc", testPolicy, now)
					require.NoError(t, err)
					if !res.Allowed {
						break
					}
				}
				assert.WithinDuration(t, now.Add(block), res.ResetTime, 0)
				now = res.ResetTime
			}
		})
	}
}

func TestStores_ViolationDecay(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(1_700_000_000_000)

			for i := 0; i < 4; i++ {
				_, err := store.Hit(ctx, "decay", testPolicy, now)
				require.NoError(t, err)
			}

			now = now.Add(2 * time.Hour)
			var res Result
			for i := 0; i < 4; i++ {
				var err error
				res, err = store.Hit(ctx, "decay", testPolicy, now)
				require.NoError(t, err)
			}
			assert.False(t, res.Allowed)
			assert.WithinDuration(t, now.Add(5*time.Minute), res.ResetTime, 0, "escalation must reset after a quiet period")
		})
	}
}

func TestRedisStore_SetsExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	now := time.UnixMilli(1_700_000_000_000)

	_, err := store.Hit(context.Background(), "ttl", testPolicy, now)
	require.NoError(t, err)

	assert.True(t, mr.Exists("ttl"))
	assert.Equal(t, time.Hour, mr.TTL("ttl"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Hit(context.Background(), "down", testPolicy, time.Now())
	assert.Error(t, err)
}

func TestMemoryStore_ConcurrentHitsAreNotLost(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{Window: time.Hour, MaxAttempts: 1000}
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				res, err := store.Hit(context.Background(), "shared", policy, now)
				if err == nil && res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, allowed)
	res, err := store.Hit(context.Background(), "shared", policy, now)
	require.NoError(t, err)
	assert.Equal(t, 1000-501, res.Remaining)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	short := Policy{Window: time.Minute, MaxAttempts: 5}

	_, err := store.Hit(ctx, "idle", short, now)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = store.Hit(ctx, "blocked", testPolicy, now)
		require.NoError(t, err)
	}
	require.Equal(t, 2, store.Len())

	assert.Equal(t, 0, store.Sweep(now.Add(30*time.Second)))
	assert.Equal(t, 1, store.Sweep(now.Add(2*time.Minute)), "only the idle key is evicted")
	assert.Equal(t, 1, store.Len())

	assert.Equal(t, 1, store.Sweep(now.Add(2*time.Hour)))
	assert.Equal(t, 0, store.Len())

	res, err := store.Hit(ctx, "idle", short, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}
