package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/pkg/database"
)

// twoFactorRepository implements TwoFactorRepository on PostgreSQL
type twoFactorRepository struct {
	db *database.Postgres
}

// NewTwoFactorRepository creates a PostgreSQL-backed code store
func NewTwoFactorRepository(db *database.Postgres) TwoFactorRepository {
	return &twoFactorRepository{db: db}
}

// Create stores a pending code
func (r *twoFactorRepository) Create(ctx context.Context, code *domain.TwoFactorCode) error {
	query := `
		INSERT INTO two_factor_codes (user_id, email_hash, session_token_hash, code_hash,
			expires_at, used, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8)
		RETURNING id
	`

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	err := r.db.DB.QueryRowxContext(ctx, query,
		code.UserID,
		code.EmailHash,
		code.SessionTokenHash,
		code.CodeHash,
		code.ExpiresAt,
		code.IPAddress,
		code.UserAgent,
		code.CreatedAt,
	).Scan(&code.ID)
	if err != nil {
		return fmt.Errorf("failed to create two-factor code: %w", err)
	}

	return nil
}

// Consume marks a code used only if every binding matches
func (r *twoFactorRepository) Consume(ctx context.Context, match domain.TwoFactorMatch, now time.Time) (bool, error) {
	query := `
		UPDATE two_factor_codes
		SET used = TRUE, used_at = $5
		WHERE session_token_hash = $1
			AND user_id = $2
			AND email_hash = $3
			AND code_hash = $4
			AND used = FALSE
			AND expires_at > $5
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		match.SessionTokenHash,
		match.UserID,
		match.EmailHash,
		match.CodeHash,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume two-factor code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Supersede marks the user's pending codes as used
func (r *twoFactorRepository) Supersede(ctx context.Context, userID int64, now time.Time) error {
	query := `UPDATE two_factor_codes SET used = TRUE, used_at = $2 WHERE user_id = $1 AND used = FALSE`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("failed to supersede two-factor codes: %w", err)
	}

	return nil
}

// DeleteExpired removes expired and consumed codes
func (r *twoFactorRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM two_factor_codes WHERE expires_at < $1 OR used = TRUE`

	result, err := r.db.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired two-factor codes: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}

// pendingCode guards one stored code
type pendingCode struct {
	mu   sync.Mutex
	code domain.TwoFactorCode
}

// memoryTwoFactorRepository keeps codes in process memory keyed by session
// token hash. Each entry has its own lock.
type memoryTwoFactorRepository struct {
	codes sync.Map
}

// NewMemoryTwoFactorRepository creates an in-memory code store for
// single-instance deployments
func NewMemoryTwoFactorRepository() TwoFactorRepository {
	return &memoryTwoFactorRepository{}
}

func (r *memoryTwoFactorRepository) Create(_ context.Context, code *domain.TwoFactorCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	r.codes.Store(code.SessionTokenHash, &pendingCode{code: *code})
	return nil
}

func (r *memoryTwoFactorRepository) Consume(_ context.Context, match domain.TwoFactorMatch, now time.Time) (bool, error) {
	v, ok := r.codes.Load(match.SessionTokenHash)
	if !ok {
		return false, nil
	}

	p := v.(*pendingCode)
	p.mu.Lock()
	defer p.mu.Unlock()

	c := &p.code
	if c.Used || !now.Before(c.ExpiresAt) ||
		c.UserID != match.UserID ||
		c.EmailHash != match.EmailHash ||
		c.CodeHash != match.CodeHash {
		return false, nil
	}

	c.Used = true
	c.UsedAt = &now
	return true, nil
}

func (r *memoryTwoFactorRepository) Supersede(_ context.Context, userID int64, now time.Time) error {
	r.codes.Range(func(_, v any) bool {
		p := v.(*pendingCode)
		p.mu.Lock()
		if p.code.UserID == userID && !p.code.Used {
			p.code.Used = true
			p.code.UsedAt = &now
		}
		p.mu.Unlock()
		return true
	})
	return nil
}

func (r *memoryTwoFactorRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	r.codes.Range(func(k, v any) bool {
		p := v.(*pendingCode)
		p.mu.Lock()
		if p.code.Used || p.code.ExpiresAt.Before(now) {
			r.codes.Delete(k)
			n++
		}
		p.mu.Unlock()
		return true
	})
	return n, nil
}
