// Package ratelimit throttles sensitive auth operations per identity and action class.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts time for deterministic tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// RequestInfo carries request details used for logging
type RequestInfo struct {
	IP        string
	UserAgent string
	Path      string
}

// Result is the outcome of a single counter check
type Result struct {
	Allowed    bool
	Blocked    bool
	Class      ActionClass
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1 when denied
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RetryMessage describes when the caller may try again
func (r Result) RetryMessage() string {
	secs := r.RetryAfterSeconds()
	switch {
	case secs < 60:
		return retryIn(secs, "second")
	case secs < 3600:
		return retryIn((secs+59)/60, "minute")
	default:
		return retryIn((secs+3599)/3600, "hour")
	}
}

func retryIn(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("Too many attempts. Please try again in %d %s.", n, unit)
}

// Store records hits against a key. Implementations must update a key atomically.
type Store interface {
	Hit(ctx context.Context, key string, policy Policy, now time.Time) (Result, error)
}

// Subject is one identity to be checked under an action class
type Subject struct {
	Class    ActionClass
	Identity string
}

// IPSubject keys a counter by raw client IP
func IPSubject(class ActionClass, ip string) Subject {
	return Subject{Class: class, Identity: "ip:" + strings.TrimSpace(ip)}
}

// EmailSubject keys a counter by normalized email
func EmailSubject(class ActionClass, email string) Subject {
	return Subject{Class: class, Identity: "email:" + strings.ToLower(strings.TrimSpace(email))}
}

// UserSubject keys a counter by internal user id
func UserSubject(class ActionClass, userID int64) Subject {
	return Subject{Class: class, Identity: "user:" + strconv.FormatInt(userID, 10)}
}

// Limiter applies per-class policies on top of a Store
type Limiter struct {
	store    Store
	policies map[ActionClass]Policy
	clock    Clock
	logger   *zap.Logger
}

// NewLimiter creates a limiter. A nil clock uses the wall clock.
func NewLimiter(store Store, policies map[ActionClass]Policy, clock Clock, logger *zap.Logger) (*Limiter, error) {
	for class, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy for %s: %w", class, err)
		}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		store:    store,
		policies: policies,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Policy returns the policy registered for class
func (l *Limiter) Policy(class ActionClass) (Policy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

// Check counts one attempt for identity under class
func (l *Limiter) Check(ctx context.Context, identity string, class ActionClass, req RequestInfo) (Result, error) {
	policy, ok := l.policies[class]
	if !ok {
		return Result{}, fmt.Errorf("unknown action class %q", class)
	}

	now := l.clock.Now()
	res, err := l.store.Hit(ctx, key(class, identity), policy, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to record %s attempt: %w", class, err)
	}

	res.Class = class
	res.Limit = policy.MaxAttempts
	if !res.Allowed {
		res.RetryAfter = res.ResetTime.Sub(now)
		l.logger.Warn("rate limit exceeded",
			zap.String("class", string(class)),
			zap.String("subject_kind", subjectKind(identity)),
			zap.String("ip", req.IP),
			zap.String("path", req.Path),
			zap.Bool("blocked", res.Blocked),
			zap.Time("reset_time", res.ResetTime),
		)
	}

	return res, nil
}

// CheckAll checks subjects in order and stops at the first denial, so every
// subject must pass for the request to proceed.
func (l *Limiter) CheckAll(ctx context.Context, req RequestInfo, subjects ...Subject) (Result, error) {
	var last Result
	for _, s := range subjects {
		res, err := l.Check(ctx, s.Identity, s.Class, req)
		if err != nil {
			return Result{}, err
		}
		if !res.Allowed {
			return res, nil
		}
		last = res
	}
	return last, nil
}

func key(class ActionClass, identity string) string {
	return "ratelimit:" + string(class) + ":" + identity
}

func subjectKind(identity string) string {
	if i := strings.IndexByte(identity, ':'); i > 0 {
		return identity[:i]
	}
	return "unknown"
}
