package ratelimit

import (
	"context"
	"sync"
	"time"
)

// counter is the state of one (class, identity) key
type counter struct {
	mu            sync.Mutex
	dead          bool
	windowStart   time.Time
	count         int
	blockedUntil  time.Time
	violations    int
	lastViolation time.Time
	policy        Policy
}

// MemoryStore keeps counters in process memory. Each key has its own lock
// so unrelated identities never contend.
type MemoryStore struct {
	counters sync.Map
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Hit records one attempt for key
func (s *MemoryStore) Hit(_ context.Context, key string, policy Policy, now time.Time) (Result, error) {
	for {
		v, _ := s.counters.LoadOrStore(key, &counter{})
		c := v.(*counter)

		c.mu.Lock()
		if c.dead {
			// Swept between load and lock; retry against a fresh entry.
			c.mu.Unlock()
			continue
		}
		res := c.hit(policy, now)
		c.mu.Unlock()
		return res, nil
	}
}

// Sweep evicts counters that carry no live window, block, or escalation state
func (s *MemoryStore) Sweep(now time.Time) int {
	evicted := 0
	s.counters.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		if c.idle(now) {
			c.dead = true
			s.counters.Delete(k)
			evicted++
		}
		c.mu.Unlock()
		return true
	})
	return evicted
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	n := 0
	s.counters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *counter) hit(policy Policy, now time.Time) Result {
	c.policy = policy

	if now.Before(c.blockedUntil) {
		return Result{
			Allowed:   false,
			Blocked:   true,
			ResetTime: c.blockedUntil,
		}
	}

	if c.windowStart.IsZero() || !now.Before(c.windowStart.Add(policy.Window)) {
		c.windowStart = now
		c.count = 0
	}

	if c.violations > 0 && policy.ViolationDecay > 0 && now.Sub(c.lastViolation) >= policy.ViolationDecay {
		c.violations = 0
	}

	c.count++
	windowEnd := c.windowStart.Add(policy.Window)

	if c.count > policy.MaxAttempts {
		c.violations++
		c.lastViolation = now

		block := policy.blockFor(c.violations)
		until := windowEnd
		if blockEnd := now.Add(block); blockEnd.After(until) {
			until = blockEnd
		}
		c.blockedUntil = until

		return Result{
			Allowed:   false,
			Blocked:   block > 0,
			ResetTime: until,
		}
	}

	return Result{
		Allowed:   true,
		Remaining: policy.MaxAttempts - c.count,
		ResetTime: windowEnd,
	}
}

func (c *counter) idle(now time.Time) bool {
	if now.Before(c.blockedUntil) {
		return false
	}
	if !c.windowStart.IsZero() && now.Before(c.windowStart.Add(c.policy.Window)) {
		return false
	}
	if c.violations > 0 && c.policy.ViolationDecay > 0 && now.Sub(c.lastViolation) < c.policy.ViolationDecay {
		return false
	}
	return true
}
