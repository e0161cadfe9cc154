package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/dto"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
)

// LoginResult is the outcome of a successful credential step. Either Token
// is set, or TwoFactor holds the challenge the client must answer.
type LoginResult struct {
	User      *domain.SafeUser
	Token     string
	ExpiresAt time.Time
	TwoFactor *domain.TwoFactorChallenge
}

// AuthService defines methods for authentication operations
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest, info ratelimit.RequestInfo) (*LoginResult, error)
	LoginWithTwoFactor(ctx context.Context, req *dto.TwoFactorLoginRequest, info ratelimit.RequestInfo) (*LoginResult, error)
	CurrentUser(ctx context.Context, claims *domain.SessionClaims) (*domain.SafeUser, error)
	RequestPasswordReset(ctx context.Context, email string, info ratelimit.RequestInfo) error
	ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest, info ratelimit.RequestInfo) error
	VerifyEmail(ctx context.Context, token string, info ratelimit.RequestInfo) error
	ResendVerification(ctx context.Context, email string, info ratelimit.RequestInfo) error
	ValidateToken(ctx context.Context, token string) (*domain.SessionClaims, error)
}

// AdminService defines the admin back office operations. Callers must have
// passed VerifyAdmin first.
type AdminService interface {
	VerifyAdmin(ctx context.Context, claims *domain.SessionClaims, info ratelimit.RequestInfo) (AdminDecision, error)
	Authorize(ctx context.Context, claims *domain.SessionClaims, info ratelimit.RequestInfo) (AdminDecision, error)
	ListUsers(ctx context.Context, limit, offset int) ([]domain.AdminUserView, error)
	SetUserAdmin(ctx context.Context, actor *domain.SessionClaims, userID int64, isAdmin bool) (*domain.AdminUserView, error)
	SetUserActive(ctx context.Context, actor *domain.SessionClaims, userID int64, isActive bool) (*domain.AdminUserView, error)
}
