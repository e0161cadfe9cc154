package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/pkg/observability"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// adminService implements AdminService interface
type adminService struct {
	Dependencies
	now func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(deps Dependencies) AdminService {
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoopAuthMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &adminService{Dependencies: deps, now: time.Now}
}

// VerifyAdmin applies the admin auth limit and the two-step admin check.
// Privileged routes use Authorize and their own route class instead.
func (s *adminService) VerifyAdmin(ctx context.Context, claims *domain.SessionClaims, info ratelimit.RequestInfo) (AdminDecision, error) {
	subjects := []ratelimit.Subject{ratelimit.IPSubject(ratelimit.ClassAdminAuth, info.IP)}
	if claims != nil {
		subjects = append(subjects, ratelimit.UserSubject(ratelimit.ClassAdminAuth, claims.UserID))
	}

	res, err := s.Limiter.CheckAll(ctx, info, subjects...)
	if err != nil {
		return AdminDecision{}, internal(err)
	}
	if !res.Allowed {
		s.Metrics.RateLimited(ctx, string(res.Class))
		return AdminDecision{}, rateLimited(res)
	}

	return s.Authorize(ctx, claims, info)
}

// Authorize runs the two-step admin check without counting an admin auth hit
func (s *adminService) Authorize(ctx context.Context, claims *domain.SessionClaims, info ratelimit.RequestInfo) (AdminDecision, error) {
	decision, err := s.Authority.VerifyAdminAccess(ctx, claims)
	if err != nil {
		return decision, internal(err)
	}

	if !decision.Granted() {
		reason := "not_admin"
		if decision.TokenIsAdmin {
			reason = "stale_claim"
		}
		s.Metrics.AdminDenied(ctx, reason)
		s.Logger.Warn("admin access denied",
			zap.String("reason", reason),
			zap.String("ip", info.IP),
			zap.String("path", info.Path),
		)
		return decision, &Error{Kind: KindForbidden, Message: "Admin access required", Admin: &decision}
	}

	return decision, nil
}

// ListUsers returns a page of users ordered by id
func (s *adminService) ListUsers(ctx context.Context, limit, offset int) ([]domain.AdminUserView, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.Repos.User.List(ctx, limit, offset)
	if err != nil {
		return nil, internal(err)
	}

	views := make([]domain.AdminUserView, 0, len(rows))
	for _, row := range rows {
		user, err := decryptUser(ctx, s.Codec, s.Metrics, s.Logger, row)
		if err != nil {
			return nil, internal(err)
		}
		views = append(views, s.Projector.AdminView(user))
	}

	return views, nil
}

// SetUserAdmin grants or revokes admin. Admins cannot revoke their own flag.
func (s *adminService) SetUserAdmin(ctx context.Context, actor *domain.SessionClaims, userID int64, isAdmin bool) (*domain.AdminUserView, error) {
	if actor != nil && actor.UserID == userID && !isAdmin {
		return nil, invalidInput("You cannot revoke your own admin access")
	}

	if err := s.Repos.User.SetAdmin(ctx, userID, isAdmin, s.now()); err != nil {
		return nil, s.mutationError(err)
	}

	s.Logger.Info("admin flag changed",
		zap.Int64("actor_id", actorID(actor)),
		zap.Int64("user_id", userID),
		zap.Bool("is_admin", isAdmin),
	)

	return s.view(ctx, userID)
}

// SetUserActive enables or disables an account. Admins cannot disable themselves.
func (s *adminService) SetUserActive(ctx context.Context, actor *domain.SessionClaims, userID int64, isActive bool) (*domain.AdminUserView, error) {
	if actor != nil && actor.UserID == userID && !isActive {
		return nil, invalidInput("You cannot deactivate your own account")
	}

	if err := s.Repos.User.SetActive(ctx, userID, isActive, s.now()); err != nil {
		return nil, s.mutationError(err)
	}

	s.Logger.Info("account state changed",
		zap.Int64("actor_id", actorID(actor)),
		zap.Int64("user_id", userID),
		zap.Bool("is_active", isActive),
	)

	return s.view(ctx, userID)
}

func (s *adminService) view(ctx context.Context, userID int64) (*domain.AdminUserView, error) {
	row, err := s.Repos.User.FindByID(ctx, userID)
	if err != nil {
		return nil, s.mutationError(err)
	}

	user, err := decryptUser(ctx, s.Codec, s.Metrics, s.Logger, row)
	if err != nil {
		return nil, internal(err)
	}

	view := s.Projector.AdminView(user)
	return &view, nil
}

func (s *adminService) mutationError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("User not found")
	}
	return internal(fmt.Errorf("admin user update: %w", err))
}

func actorID(actor *domain.SessionClaims) int64 {
	if actor == nil {
		return 0
	}
	return actor.UserID
}
