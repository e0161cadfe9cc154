package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
)

// UserRepository reads and mutates users rows. Rows are returned as stored:
// PII columns may be ciphertext and must be decrypted by the caller.
type UserRepository interface {
	Create(ctx context.Context, row domain.Row) (int64, error)
	// FindByEmail matches either the plaintext or the searchable ciphertext form
	FindByEmail(ctx context.Context, plaintext, encrypted string) (domain.Row, error)
	FindByID(ctx context.Context, id int64) (domain.Row, error)
	List(ctx context.Context, limit, offset int) ([]domain.Row, error)
	FetchAdminFlag(ctx context.Context, id int64) (any, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id int64, at time.Time) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool, at time.Time) error
	SetActive(ctx context.Context, id int64, isActive bool, at time.Time) error
}

// OneTimeTokenRepository stores hashed password reset or email verification tokens
type OneTimeTokenRepository interface {
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	// PurgeForUser removes the user's earlier tokens and every expired token
	PurgeForUser(ctx context.Context, userID int64, now time.Time) error
	// Consume marks the token used and returns its owner. Unknown tokens yield
	// ErrNotFound; used or expired ones yield ErrTokenInvalid.
	Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TwoFactorRepository stores pending second-factor codes
type TwoFactorRepository interface {
	Create(ctx context.Context, code *domain.TwoFactorCode) error
	// Consume marks the matching unused, unexpired code as used in one step
	// and reports whether such a code existed.
	Consume(ctx context.Context, match domain.TwoFactorMatch, now time.Time) (bool, error)
	// Supersede invalidates the user's pending codes
	Supersede(ctx context.Context, userID int64, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
