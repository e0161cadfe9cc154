package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript applies the same window/escalation rules as MemoryStore inside
// Redis, so concurrent instances update a key atomically.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local maxBlock = tonumber(ARGV[5])
local decay = tonumber(ARGV[6])

local h = redis.call('HMGET', key, 'ws', 'c', 'bu', 'v', 'lv')
local ws = tonumber(h[1]) or 0
local c = tonumber(h[2]) or 0
local bu = tonumber(h[3]) or 0
local v = tonumber(h[4]) or 0
local lv = tonumber(h[5]) or 0

if bu > now then
  return {0, c, bu, 1}
end

if ws == 0 or now >= ws + window then
  ws = now
  c = 0
end

if v > 0 and decay > 0 and now - lv >= decay then
  v = 0
end

c = c + 1
local allowed = 1
local blocked = 0
local reset = ws + window

if c > max then
  allowed = 0
  v = v + 1
  lv = now
  local d = block
  if d > 0 then
    for i = 2, v do
      d = d * 2
      if maxBlock > 0 and d >= maxBlock then
        d = maxBlock
        break
      end
    end
    if maxBlock > 0 and d > maxBlock then
      d = maxBlock
    end
    blocked = 1
  end
  if now + d > reset then
    reset = now + d
  end
  bu = reset
end

redis.call('HSET', key, 'ws', ws, 'c', c, 'bu', bu, 'v', v, 'lv', lv)

local ttl = reset - now
if window > ttl then ttl = window end
if decay > ttl then ttl = decay end
redis.call('PEXPIRE', key, ttl)

return {allowed, c, reset, blocked}
`)

// RedisStore shares counters between instances through Redis hashes
type RedisStore struct {
	client redis.Scripter
}

// NewRedisStore creates a store on top of a go-redis client
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

// Hit records one attempt for key
func (s *RedisStore) Hit(ctx context.Context, key string, policy Policy, now time.Time) (Result, error) {
	raw, err := hitScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		policy.Window.Milliseconds(),
		policy.MaxAttempts,
		policy.BlockDuration.Milliseconds(),
		policy.MaxBlockDuration.Milliseconds(),
		policy.ViolationDecay.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(raw) != 4 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply of length %d", len(raw))
	}

	allowed := raw[0] == 1
	count := int(raw[1])
	res := Result{
		Allowed:   allowed,
		Blocked:   raw[3] == 1,
		ResetTime: time.UnixMilli(raw[2]),
	}
	if allowed {
		res.Remaining = policy.MaxAttempts - count
	}

	return res, nil
}
