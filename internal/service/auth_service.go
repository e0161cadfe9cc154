package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/dto"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/mail"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
	"github.com/prperemyshlev/storefront-auth/pkg/observability"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const oneTimeTokenBytes = 32

// Dependencies are the collaborators shared by the auth and admin services
type Dependencies struct {
	Repos     *repository.Repositories
	Codec     *fieldcrypt.Codec
	Tokens    *utils.TokenService
	Limiter   *ratelimit.Limiter
	Verifier  *CredentialVerifier
	TwoFactor *TwoFactorManager
	Authority *AdminAuthority
	Projector *Projector
	Mailer    mail.Mailer
	Metrics   *observability.AuthMetrics
	Logger    *zap.Logger
}

// Options tune the auth flows
type Options struct {
	TwoFactorRequiredForAdmins bool
	PasswordResetTTL           time.Duration
	EmailVerificationTTL       time.Duration
	AppBaseURL                 string
	BCryptCost                 int
}

// authService implements AuthService interface
type authService struct {
	Dependencies
	opts Options
	now  func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(deps Dependencies, opts Options) AuthService {
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoopAuthMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = time.Hour
	}
	if opts.EmailVerificationTTL <= 0 {
		opts.EmailVerificationTTL = 24 * time.Hour
	}
	if opts.BCryptCost <= 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}

	return &authService{
		Dependencies: deps,
		opts:         opts,
		now:          time.Now,
	}
}

// Login runs the password step. Users that need a second factor get a
// challenge instead of a session token.
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, info ratelimit.RequestInfo) (*LoginResult, error) {
	if err := s.checkCredentialInput(req.Email, req.Password); err != nil {
		s.Metrics.Login(ctx, "invalid_input")
		return nil, err
	}

	if err := s.limit(ctx, info,
		ratelimit.IPSubject(ratelimit.ClassLogin, info.IP),
		ratelimit.EmailSubject(ratelimit.ClassLogin, req.Email),
	); err != nil {
		s.Metrics.Login(ctx, "rate_limited")
		return nil, err
	}

	user, err := s.authenticate(ctx, req.Email, req.Password, info)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled || (user.IsAdmin && s.opts.TwoFactorRequiredForAdmins) {
		challenge, err := s.TwoFactor.Issue(ctx, user, info)
		if err != nil {
			s.Metrics.Login(ctx, "two_factor_failed")
			return nil, err
		}
		s.Metrics.Login(ctx, "two_factor_required")
		s.Metrics.TwoFactor(ctx, "issued")
		return &LoginResult{TwoFactor: &challenge}, nil
	}

	return s.completeLogin(ctx, user, info)
}

// LoginWithTwoFactor re-checks the credentials and consumes the emailed code
func (s *authService) LoginWithTwoFactor(ctx context.Context, req *dto.TwoFactorLoginRequest, info ratelimit.RequestInfo) (*LoginResult, error) {
	if err := s.checkCredentialInput(req.Email, req.Password); err != nil {
		s.Metrics.Login(ctx, "invalid_input")
		return nil, err
	}
	if req.SessionToken == "" || req.Code == "" {
		return nil, invalidInput("Verification code and session token are required")
	}
	if !utils.IsNumericCode(req.Code, twoFactorCodeLength) {
		return nil, invalidInput("Verification code must be 6 digits")
	}

	if err := s.limit(ctx, info,
		ratelimit.IPSubject(ratelimit.ClassTwoFactorVerify, info.IP),
		ratelimit.EmailSubject(ratelimit.ClassTwoFactorVerify, req.Email),
	); err != nil {
		s.Metrics.TwoFactor(ctx, "rate_limited")
		return nil, err
	}

	user, err := s.authenticate(ctx, req.Email, req.Password, info)
	if err != nil {
		return nil, err
	}

	ok, err := s.TwoFactor.Verify(ctx, req.SessionToken, req.Code, user.ID, user.Email)
	if err != nil {
		return nil, internal(fmt.Errorf("failed to verify two-factor code: %w", err))
	}
	if !ok {
		s.Metrics.TwoFactor(ctx, "rejected")
		s.Logger.Warn("two-factor code rejected", zap.Int64("user_id", user.ID), zap.String("ip", info.IP))
		return nil, unauthenticated("Invalid or expired verification code")
	}
	s.Metrics.TwoFactor(ctx, "verified")

	return s.completeLogin(ctx, user, info)
}

// authenticate verifies credentials and the account state shared by both
// login steps
func (s *authService) authenticate(ctx context.Context, email, password string, info ratelimit.RequestInfo) (*domain.User, error) {
	row, err := s.Verifier.LoginWithEncryptedData(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.Metrics.Login(ctx, "invalid_credentials")
			s.Logger.Warn("failed login", zap.String("ip", info.IP), zap.String("user_agent", info.UserAgent))
			return nil, unauthenticated(MsgInvalidCredentials)
		}
		s.Metrics.Login(ctx, "error")
		return nil, internal(err)
	}

	user, err := s.decryptUser(ctx, row)
	if err != nil {
		s.Metrics.Login(ctx, "error")
		return nil, internal(err)
	}

	if !user.IsActive {
		s.Metrics.Login(ctx, "inactive")
		s.Logger.Warn("login to inactive account", zap.Int64("user_id", user.ID), zap.String("ip", info.IP))
		return nil, forbidden(MsgAccessDenied)
	}

	if !user.IsEmailVerified() {
		s.Metrics.Login(ctx, "unverified")
		return nil, &Error{
			Kind:             KindUnauthenticated,
			Message:          "Please verify your email address before logging in",
			EmailNotVerified: true,
		}
	}

	if utils.NeedsRehash(user.PasswordHash, s.opts.BCryptCost) {
		s.rehashPassword(ctx, user.ID, password)
	}

	return user, nil
}

// rehashPassword upgrades a hash made with an older cost. Failures keep the old hash.
func (s *authService) rehashPassword(ctx context.Context, userID int64, password string) {
	hash, err := utils.HashPassword(password, s.opts.BCryptCost)
	if err == nil {
		err = s.Repos.User.UpdatePasswordHash(ctx, userID, hash, s.now())
	}
	if err != nil {
		s.Logger.Warn("failed to upgrade password hash", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *authService) completeLogin(ctx context.Context, user *domain.User, info ratelimit.RequestInfo) (*LoginResult, error) {
	claims := domain.ClaimsForUser(user)
	if fieldcrypt.IsCiphertext(claims.Name) {
		claims.Name, _, _ = strings.Cut(user.Email, "@")
	}

	token, expiresAt, err := s.Tokens.Generate(claims)
	if err != nil {
		s.Metrics.Login(ctx, "error")
		return nil, internal(fmt.Errorf("failed to generate token: %w", err))
	}

	now := s.now()
	if err := s.Repos.User.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.Logger.Error("failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	s.Metrics.Login(ctx, "success")
	s.Logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("ip", info.IP))

	safe := s.Projector.ProcessSafeUserData(user)
	return &LoginResult{User: &safe, Token: token, ExpiresAt: expiresAt}, nil
}

// CurrentUser reloads the token's user so that disabled accounts lose access
func (s *authService) CurrentUser(ctx context.Context, claims *domain.SessionClaims) (*domain.SafeUser, error) {
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthenticated(MsgInvalidToken)
		}
		return nil, internal(err)
	}
	if !user.IsActive {
		return nil, unauthenticated(MsgInvalidToken)
	}

	safe := s.Projector.ProcessSafeUserData(user)
	return &safe, nil
}

// RequestPasswordReset mails a reset link. The outcome is the same whether
// or not the email belongs to an account.
func (s *authService) RequestPasswordReset(ctx context.Context, email string, info ratelimit.RequestInfo) error {
	if err := s.checkEmailInput(email); err != nil {
		return err
	}

	if err := s.limit(ctx, info,
		ratelimit.IPSubject(ratelimit.ClassPasswordResetRequest, info.IP),
		ratelimit.EmailSubject(ratelimit.ClassPasswordResetRequest, email),
	); err != nil {
		return err
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return internal(err)
	}
	if !user.IsActive {
		return nil
	}

	token, expiresAt, err := s.issueOneTimeToken(ctx, s.Repos.PasswordReset, user.ID, s.opts.PasswordResetTTL)
	if err != nil {
		return internal(fmt.Errorf("failed to create password reset token: %w", err))
	}

	link := s.link("/reset-password", token)
	if err := s.Mailer.SendPasswordReset(ctx, user.Email, link, expiresAt); err != nil {
		s.Logger.Error("failed to send password reset email", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return nil
}

// ResetPassword consumes a reset token and stores the new password hash
func (s *authService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest, info ratelimit.RequestInfo) error {
	if req.Token == "" || req.Password == "" {
		return invalidInput("Token and password are required")
	}
	if !utils.ValidatePassword(req.Password) {
		return invalidInput("Password must be 8-72 characters long and contain uppercase, lowercase, and number")
	}

	if err := s.limit(ctx, info, ratelimit.IPSubject(ratelimit.ClassPasswordResetSubmit, info.IP)); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.Password, s.opts.BCryptCost)
	if err != nil {
		return internal(err)
	}

	now := s.now()
	userID, err := s.Repos.PasswordReset.Consume(ctx, utils.HashToken(req.Token), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrTokenInvalid) {
			return invalidInput("Invalid or expired reset token")
		}
		return internal(err)
	}

	if err := s.Repos.User.UpdatePasswordHash(ctx, userID, hash, now); err != nil {
		return internal(err)
	}

	s.Logger.Info("password reset", zap.Int64("user_id", userID), zap.String("ip", info.IP))
	return nil
}

// VerifyEmail consumes a verification token and marks the email verified
func (s *authService) VerifyEmail(ctx context.Context, token string, info ratelimit.RequestInfo) error {
	if token == "" {
		return invalidInput("Token is required")
	}

	if err := s.limit(ctx, info, ratelimit.IPSubject(ratelimit.ClassEmailVerification, info.IP)); err != nil {
		return err
	}

	now := s.now()
	userID, err := s.Repos.EmailVerification.Consume(ctx, utils.HashToken(token), now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFound("Verification token not found")
		case errors.Is(err, repository.ErrTokenInvalid):
			return invalidInput("Invalid or expired verification token")
		default:
			return internal(err)
		}
	}

	if err := s.Repos.User.MarkEmailVerified(ctx, userID, now); err != nil {
		return internal(err)
	}

	s.Logger.Info("email verified", zap.Int64("user_id", userID))
	return nil
}

// ResendVerification mails a new verification link to an unverified account.
// Unknown and already verified emails get the same response.
func (s *authService) ResendVerification(ctx context.Context, email string, info ratelimit.RequestInfo) error {
	if err := s.checkEmailInput(email); err != nil {
		return err
	}

	if err := s.limit(ctx, info,
		ratelimit.IPSubject(ratelimit.ClassEmailVerification, info.IP),
		ratelimit.EmailSubject(ratelimit.ClassEmailVerification, email),
	); err != nil {
		return err
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return internal(err)
	}
	if user.IsEmailVerified() || !user.IsActive {
		return nil
	}

	token, expiresAt, err := s.issueOneTimeToken(ctx, s.Repos.EmailVerification, user.ID, s.opts.EmailVerificationTTL)
	if err != nil {
		return internal(fmt.Errorf("failed to create verification token: %w", err))
	}

	if err := s.Mailer.SendEmailVerification(ctx, user.Email, s.link("/verify-email", token), expiresAt); err != nil {
		s.Logger.Error("failed to send verification email", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return nil
}

// ValidateToken verifies a session token
func (s *authService) ValidateToken(_ context.Context, token string) (*domain.SessionClaims, error) {
	if token == "" {
		return nil, unauthenticated(MsgInvalidToken)
	}

	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, &Error{Kind: KindUnauthenticated, Message: MsgInvalidToken, Err: err}
	}

	return claims, nil
}

// checkCredentialInput rejects missing fields, attack patterns and malformed
// emails before anything touches storage
func (s *authService) checkCredentialInput(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return invalidInput("Email and password are required")
	}
	return s.checkEmailInput(email)
}

func (s *authService) checkEmailInput(email string) error {
	if strings.TrimSpace(email) == "" {
		return invalidInput("Email is required")
	}
	if utils.DetectAttackPattern(email) {
		s.Logger.Warn("attack pattern in email input")
		return forbidden(MsgAccessDenied)
	}
	if !utils.ValidateEmail(utils.SanitizeEmail(email)) {
		return invalidInput("Invalid email format")
	}
	return nil
}

// limit checks every subject and converts a denial into a RateLimited error
func (s *authService) limit(ctx context.Context, info ratelimit.RequestInfo, subjects ...ratelimit.Subject) error {
	res, err := s.Limiter.CheckAll(ctx, info, subjects...)
	if err != nil {
		return internal(err)
	}
	if !res.Allowed {
		s.Metrics.RateLimited(ctx, string(res.Class))
		return rateLimited(res)
	}
	return nil
}

func (s *authService) findByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = utils.SanitizeEmail(email)
	row, err := s.Repos.User.FindByEmail(ctx, email, s.Codec.EncryptSearchable("users", "email", email))
	if err != nil {
		return nil, err
	}
	return s.decryptUser(ctx, row)
}

func (s *authService) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	row, err := s.Repos.User.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decryptUser(ctx, row)
}

// decryptUser decrypts a users row. Columns that fail to decrypt stay
// ciphertext and are masked by the projector.
func (s *authService) decryptUser(ctx context.Context, row domain.Row) (*domain.User, error) {
	return decryptUser(ctx, s.Codec, s.Metrics, s.Logger, row)
}

func decryptUser(ctx context.Context, codec *fieldcrypt.Codec, metrics *observability.AuthMetrics, logger *zap.Logger, row domain.Row) (*domain.User, error) {
	plain, err := codec.DecryptRow("users", row)
	if err != nil {
		metrics.DecryptFailure(ctx, "users")
		logger.Warn("failed to decrypt user fields", zap.Any("user_id", row["id"]), zap.Error(err))
	}

	user, err := domain.UserFromRow(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user row: %w", err)
	}
	return user, nil
}

// issueOneTimeToken replaces the user's earlier tokens with a new one and
// returns the raw token
func (s *authService) issueOneTimeToken(ctx context.Context, repo repository.OneTimeTokenRepository, userID int64, ttl time.Duration) (string, time.Time, error) {
	token, err := utils.RandomToken(oneTimeTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	if err := repo.PurgeForUser(ctx, userID, now); err != nil {
		return "", time.Time{}, err
	}

	expiresAt := now.Add(ttl)
	if err := repo.Create(ctx, userID, utils.HashToken(token), expiresAt); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (s *authService) link(path, token string) string {
	return strings.TrimRight(s.opts.AppBaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
