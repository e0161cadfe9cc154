package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/pkg/database"
)

// oneTimeTokenRepository implements OneTimeTokenRepository for one token table
type oneTimeTokenRepository struct {
	db    *database.Postgres
	table string
}

// NewOneTimeTokenRepository creates a repository over the table backing kind
func NewOneTimeTokenRepository(db *database.Postgres, kind domain.OneTimeTokenKind) OneTimeTokenRepository {
	table := string(domain.PasswordResetToken)
	if kind == domain.EmailVerificationToken {
		table = string(domain.EmailVerificationToken)
	}
	return &oneTimeTokenRepository{db: db, table: table}
}

// Create stores a token hash
func (r *oneTimeTokenRepository) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	query := `INSERT INTO ` + r.table + ` (user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, FALSE, $4)`

	_, err := r.db.DB.ExecContext(ctx, query, userID, tokenHash, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create %s token: %w", r.table, err)
	}

	return nil
}

// PurgeForUser deletes the user's earlier tokens and any expired tokens
func (r *oneTimeTokenRepository) PurgeForUser(ctx context.Context, userID int64, now time.Time) error {
	query := `DELETE FROM ` + r.table + ` WHERE user_id = $1 OR expires_at < $2`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("failed to purge %s tokens: %w", r.table, err)
	}

	return nil
}

// Consume marks an unused, unexpired token as used in a single statement
func (r *oneTimeTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	query := `UPDATE ` + r.table + `
		SET used = TRUE, used_at = $2
		WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		RETURNING user_id`

	var userID int64
	err := r.db.DB.QueryRowxContext(ctx, query, tokenHash, now).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to consume %s token: %w", r.table, err)
	}

	var exists bool
	err = r.db.DB.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+r.table+` WHERE token_hash = $1)`, tokenHash,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s token: %w", r.table, err)
	}

	if exists {
		return 0, ErrTokenInvalid
	}
	return 0, ErrNotFound
}

// DeleteExpired deletes all expired tokens
func (r *oneTimeTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM ` + r.table + ` WHERE expires_at < $1`

	result, err := r.db.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired %s tokens: %w", r.table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}
