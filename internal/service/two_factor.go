package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
	"go.uber.org/zap"
)

const (
	twoFactorCodeLength = 6
	sessionTokenBytes   = 32
	defaultTwoFactorTTL = 10 * time.Minute
)

// TwoFactorManager issues and verifies emailed login codes. Only hashes of
// the code, the session token and the email are stored.
type TwoFactorManager struct {
	codes   repository.TwoFactorRepository
	limiter *ratelimit.Limiter
	mailer  mail.Mailer
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewTwoFactorManager creates a code manager
func NewTwoFactorManager(
	codes repository.TwoFactorRepository,
	limiter *ratelimit.Limiter,
	mailer mail.Mailer,
	ttl time.Duration,
	logger *zap.Logger,
) *TwoFactorManager {
	if ttl <= 0 {
		ttl = defaultTwoFactorTTL
	}
	return &TwoFactorManager{
		codes:   codes,
		limiter: limiter,
		mailer:  mailer,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Create stores a fresh code for the session and supersedes the user's
// earlier pending codes.
func (m *TwoFactorManager) Create(ctx context.Context, userID int64, email, sessionToken, ip, userAgent string) (domain.TwoFactorChallenge, error) {
	code, err := utils.RandomDigits(twoFactorCodeLength)
	if err != nil {
		return domain.TwoFactorChallenge{}, err
	}

	now := m.now()
	if err := m.codes.Supersede(ctx, userID, now); err != nil {
		return domain.TwoFactorChallenge{}, err
	}

	pending := &domain.TwoFactorCode{
		UserID:           userID,
		EmailHash:        emailHash(email),
		SessionTokenHash: utils.HashToken(sessionToken),
		CodeHash:         utils.KeyedHash(sessionToken, code),
		ExpiresAt:        now.Add(m.ttl),
		IPAddress:        ip,
		UserAgent:        userAgent,
		CreatedAt:        now,
	}
	if err := m.codes.Create(ctx, pending); err != nil {
		return domain.TwoFactorChallenge{}, err
	}

	return domain.TwoFactorChallenge{
		Code:         code,
		SessionToken: sessionToken,
		ExpiresAt:    pending.ExpiresAt,
	}, nil
}

// Verify consumes the code if it was issued for exactly this session token,
// user and email, has not expired and was not used before.
func (m *TwoFactorManager) Verify(ctx context.Context, sessionToken, code string, userID int64, email string) (bool, error) {
	if sessionToken == "" || !utils.IsNumericCode(code, twoFactorCodeLength) {
		return false, nil
	}

	return m.codes.Consume(ctx, domain.TwoFactorMatch{
		SessionTokenHash: utils.HashToken(sessionToken),
		UserID:           userID,
		EmailHash:        emailHash(email),
		CodeHash:         utils.KeyedHash(sessionToken, code),
	}, m.now())
}

// Issue applies the per-email and per-IP limits, creates a code under a new
// session token and mails it. The returned challenge carries no code.
func (m *TwoFactorManager) Issue(ctx context.Context, user *domain.User, req ratelimit.RequestInfo) (domain.TwoFactorChallenge, error) {
	res, err := m.limiter.CheckAll(ctx, req,
		ratelimit.EmailSubject(ratelimit.ClassTwoFactorEmail, user.Email),
		ratelimit.IPSubject(ratelimit.ClassTwoFactorIP, req.IP),
	)
	if err != nil {
		return domain.TwoFactorChallenge{}, internal(err)
	}
	if !res.Allowed {
		return domain.TwoFactorChallenge{}, rateLimited(res)
	}

	sessionToken, err := utils.RandomToken(sessionTokenBytes)
	if err != nil {
		return domain.TwoFactorChallenge{}, internal(err)
	}

	challenge, err := m.Create(ctx, user.ID, user.Email, sessionToken, req.IP, req.UserAgent)
	if err != nil {
		return domain.TwoFactorChallenge{}, internal(fmt.Errorf("failed to create two-factor code: %w", err))
	}

	if err := m.mailer.SendTwoFactorCode(ctx, user.Email, challenge.Code, challenge.ExpiresAt); err != nil {
		return domain.TwoFactorChallenge{}, internal(fmt.Errorf("failed to send two-factor code: %w", err))
	}

	m.logger.Info("two-factor code issued",
		zap.Int64("user_id", user.ID),
		zap.String("ip", req.IP),
		zap.Time("expires_at", challenge.ExpiresAt),
	)

	challenge.Code = ""
	return challenge, nil
}

func emailHash(email string) string {
	return utils.HashToken(strings.ToLower(strings.TrimSpace(email)))
}
