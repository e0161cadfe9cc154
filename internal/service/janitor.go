package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"go.uber.org/zap"
)

// Sweeper drops idle in-process rate-limit counters
type Sweeper interface {
	Sweep(now time.Time) int
}

// Janitor periodically purges idle counters, spent two-factor codes and
// expired one-time tokens
type Janitor struct {
	sweeper  Sweeper
	repos    *repository.Repositories
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a janitor. sweeper may be nil when counters live in Redis.
func NewJanitor(sweeper Sweeper, repos *repository.Repositories, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		sweeper:  sweeper,
		repos:    repos,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.RunOnce(ctx, now)
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and retried on the next tick.
func (j *Janitor) RunOnce(ctx context.Context, now time.Time) {
	if j.sweeper != nil {
		if n := j.sweeper.Sweep(now); n > 0 {
			j.logger.Debug("swept rate limit counters", zap.Int("count", n))
		}
	}

	if j.repos == nil {
		return
	}

	if n, err := j.repos.TwoFactor.DeleteExpired(ctx, now); err != nil {
		j.logger.Error("failed to purge two-factor codes", zap.Error(err))
	} else if n > 0 {
		j.logger.Debug("purged two-factor codes", zap.Int64("count", n))
	}

	for name, repo := range map[string]repository.OneTimeTokenRepository{
		"password_reset":     j.repos.PasswordReset,
		"email_verification": j.repos.EmailVerification,
	} {
		if n, err := repo.DeleteExpired(ctx, now); err != nil {
			j.logger.Error("failed to purge expired tokens", zap.String("kind", name), zap.Error(err))
		} else if n > 0 {
			j.logger.Debug("purged expired tokens", zap.String("kind", name), zap.Int64("count", n))
		}
	}
}
