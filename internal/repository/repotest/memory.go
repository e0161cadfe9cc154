// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
)

// Users is an in-memory repository.UserRepository
type Users struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Row
	// Err, when set, is returned by every call
	Err error
}

// NewUsers creates an empty user store
func NewUsers() *Users {
	return &Users{rows: make(map[int64]domain.Row)}
}

func (u *Users) Create(_ context.Context, row domain.Row) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return 0, u.Err
	}

	for _, existing := range u.rows {
		if existing["email"] == row["email"] {
			return 0, repository.ErrDuplicateEmail
		}
	}

	u.nextID++
	stored := row.Clone()
	stored["id"] = u.nextID
	if _, ok := stored["is_active"]; !ok {
		stored["is_active"] = true
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now()
	}
	u.rows[u.nextID] = stored
	return u.nextID, nil
}

func (u *Users) FindByEmail(_ context.Context, plaintext, encrypted string) (domain.Row, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}

	for _, row := range u.rows {
		if email := row.String("email"); email == plaintext || email == encrypted {
			return row.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (u *Users) FindByID(_ context.Context, id int64) (domain.Row, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}

	row, ok := u.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return row.Clone(), nil
}

func (u *Users) List(_ context.Context, limit, offset int) ([]domain.Row, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}

	ids := make([]int64, 0, len(u.rows))
	for id := range u.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []domain.Row
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, u.rows[ids[i]].Clone())
	}
	return out, nil
}

func (u *Users) FetchAdminFlag(_ context.Context, id int64) (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}

	row, ok := u.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return row["is_admin"], nil
}

func (u *Users) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return u.set(id, "last_login", at)
}

func (u *Users) UpdatePasswordHash(_ context.Context, id int64, hash string, _ time.Time) error {
	return u.set(id, "password_hash", hash)
}

func (u *Users) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	row, ok := u.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if row["email_verified_at"] == nil {
		row["email_verified_at"] = at
	}
	return nil
}

func (u *Users) SetAdmin(_ context.Context, id int64, isAdmin bool, _ time.Time) error {
	return u.set(id, "is_admin", isAdmin)
}

func (u *Users) SetActive(_ context.Context, id int64, isActive bool, _ time.Time) error {
	return u.set(id, "is_active", isActive)
}

// Set overwrites a column directly, bypassing the repository API
func (u *Users) Set(id int64, column string, value any) {
	_ = u.set(id, column, value)
}

// Row returns a copy of the stored row
func (u *Users) Row(id int64) domain.Row {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rows[id].Clone()
}

func (u *Users) set(id int64, column string, value any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}

	row, ok := u.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row[column] = value
	return nil
}

type storedToken struct {
	userID    int64
	expiresAt time.Time
	used      bool
}

// Tokens is an in-memory repository.OneTimeTokenRepository
type Tokens struct {
	mu     sync.Mutex
	tokens map[string]*storedToken
}

// NewTokens creates an empty token store
func NewTokens() *Tokens {
	return &Tokens{tokens: make(map[string]*storedToken)}
}

func (t *Tokens) Create(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[tokenHash] = &storedToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (t *Tokens) PurgeForUser(_ context.Context, userID int64, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for hash, tok := range t.tokens {
		if tok.userID == userID || tok.expiresAt.Before(now) {
			delete(t.tokens, hash)
		}
	}
	return nil
}

func (t *Tokens) Consume(_ context.Context, tokenHash string, now time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.tokens[tokenHash]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if tok.used || !now.Before(tok.expiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	tok.used = true
	return tok.userID, nil
}

func (t *Tokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for hash, tok := range t.tokens {
		if tok.expiresAt.Before(now) {
			delete(t.tokens, hash)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored tokens
func (t *Tokens) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

// Repositories wires in-memory stores into a repository.Repositories
func Repositories(users *Users, resets, verifications *Tokens) *repository.Repositories {
	return &repository.Repositories{
		User:              users,
		PasswordReset:     resets,
		EmailVerification: verifications,
		TwoFactor:         repository.NewMemoryTwoFactorRepository(),
	}
}
