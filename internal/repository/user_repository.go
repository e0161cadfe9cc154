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

const userColumns = `id, public_uuid, email, password_hash, name, phone, cpf, address,
		is_admin, is_active, two_factor_enabled, email_verified_at, last_login, created_at`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a user row whose PII columns are already encoded for storage
func (r *userRepository) Create(ctx context.Context, row domain.Row) (int64, error) {
	query := `
		INSERT INTO users (public_uuid, email, password_hash, name, phone, cpf, address,
			is_admin, is_active, two_factor_enabled, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id
	`

	now := time.Now()
	var id int64
	err := r.db.DB.QueryRowxContext(ctx, query,
		row["public_uuid"],
		row["email"],
		row["password_hash"],
		row["name"],
		row["phone"],
		row["cpf"],
		row["address"],
		boolOr(row["is_admin"], false),
		boolOr(row["is_active"], true),
		boolOr(row["two_factor_enabled"], false),
		row["email_verified_at"],
		now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to create user: %w", ErrDuplicateEmail)
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	return id, nil
}

// FindByEmail retrieves a user whose email column holds either form
func (r *userRepository) FindByEmail(ctx context.Context, plaintext, encrypted string) (domain.Row, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 OR email = $2
		ORDER BY id
		LIMIT 1
	`

	return r.scanOne(ctx, query, plaintext, encrypted)
}

// FindByID retrieves a user by internal id
func (r *userRepository) FindByID(ctx context.Context, id int64) (domain.Row, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	return r.scanOne(ctx, query, id)
}

// List returns users ordered by id
func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.Row, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.DB.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.Row
	for rows.Next() {
		row := domain.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// FetchAdminFlag returns the raw is_admin value as the driver reports it
func (r *userRepository) FetchAdminFlag(ctx context.Context, id int64) (any, error) {
	query := `SELECT is_admin FROM users WHERE id = $1`

	var raw any
	err := r.db.DB.QueryRowxContext(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %d not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch admin flag: %w", err)
	}

	return raw, nil
}

// UpdateLastLogin updates the last login timestamp
func (r *userRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "update last login", id,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

// UpdatePasswordHash replaces the stored password hash
func (r *userRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error {
	return r.exec(ctx, "update password", id,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
}

// MarkEmailVerified sets email_verified_at unless it is already set
func (r *userRepository) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "mark email verified", id,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = $2 WHERE id = $1`, id, at)
}

// SetAdmin grants or revokes admin privileges
func (r *userRepository) SetAdmin(ctx context.Context, id int64, isAdmin bool, at time.Time) error {
	return r.exec(ctx, "set admin flag", id,
		`UPDATE users SET is_admin = $2, updated_at = $3 WHERE id = $1`, id, isAdmin, at)
}

// SetActive activates or deactivates an account
func (r *userRepository) SetActive(ctx context.Context, id int64, isActive bool, at time.Time) error {
	return r.exec(ctx, "set active flag", id,
		`UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`, id, isActive, at)
}

func (r *userRepository) scanOne(ctx context.Context, query string, args ...any) (domain.Row, error) {
	row := domain.Row{}
	err := r.db.DB.QueryRowxContext(ctx, query, args...).MapScan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row, nil
}

func (r *userRepository) exec(ctx context.Context, op string, id int64, query string, args ...any) error {
	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %d not found: %w", id, ErrNotFound)
	}

	return nil
}

func boolOr(v any, fallback bool) bool {
	if v == nil {
		return fallback
	}
	b, err := domain.ParseFlag(v)
	if err != nil {
		return fallback
	}
	return b
}
