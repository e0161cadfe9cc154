package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"go.uber.org/zap"
)

// AdminDecision records both halves of an admin check
type AdminDecision struct {
	TokenIsAdmin bool
	DBIsAdmin    bool
}

// Granted reports whether the token claim and the live flag both allow access
func (d AdminDecision) Granted() bool {
	return d.TokenIsAdmin && d.DBIsAdmin
}

// AdminAuthority decides admin access from the token claim and the stored
// is_admin flag. Results are never cached.
type AdminAuthority struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewAdminAuthority creates an admin authority
func NewAdminAuthority(users repository.UserRepository, logger *zap.Logger) *AdminAuthority {
	return &AdminAuthority{users: users, logger: logger}
}

// VerifyAdminAccess runs the two-step check. The database is only read when
// the token already claims admin.
func (a *AdminAuthority) VerifyAdminAccess(ctx context.Context, claims *domain.SessionClaims) (AdminDecision, error) {
	var d AdminDecision
	if claims == nil || claims.UserID <= 0 || !claims.IsAdmin {
		return d, nil
	}
	d.TokenIsAdmin = true

	raw, err := a.users.FetchAdminFlag(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("admin claim for missing user", zap.Int64("user_id", claims.UserID))
			return d, nil
		}
		return d, fmt.Errorf("failed to read admin flag: %w", err)
	}

	isAdmin, err := domain.ParseFlag(raw)
	if err != nil {
		a.logger.Warn("unrecognized is_admin value", zap.Int64("user_id", claims.UserID), zap.Error(err))
		return d, nil
	}
	d.DBIsAdmin = isAdmin

	if !isAdmin {
		a.logger.Warn("stale admin claim rejected", zap.Int64("user_id", claims.UserID))
	}

	return d, nil
}
