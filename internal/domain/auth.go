package domain

import "time"

// SessionClaims is the identity asserted by a session token
type SessionClaims struct {
	UserID        int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	IsAdmin       bool   `json:"isAdmin"`
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// ClaimsForUser builds session claims from a decrypted user
func ClaimsForUser(u *User) SessionClaims {
	return SessionClaims{
		UserID:        u.ID,
		Email:         u.Email,
		Name:          u.DisplayName(),
		EmailVerified: u.IsEmailVerified(),
		IsAdmin:       u.IsAdmin,
	}
}

// OneTimeTokenKind selects the table backing a one-time token
type OneTimeTokenKind string

const (
	PasswordResetToken     OneTimeTokenKind = "password_reset_tokens"
	EmailVerificationToken OneTimeTokenKind = "email_verification_tokens"
)

// OneTimeToken is a password reset or email verification token.
// Only the hash of the raw token is stored.
type OneTimeToken struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// TwoFactorCode is a pending second-factor code bound to a login session token
type TwoFactorCode struct {
	ID               int64      `db:"id"`
	UserID           int64      `db:"user_id"`
	EmailHash        string     `db:"email_hash"`
	SessionTokenHash string     `db:"session_token_hash"`
	CodeHash         string     `db:"code_hash"`
	ExpiresAt        time.Time  `db:"expires_at"`
	Used             bool       `db:"used"`
	UsedAt           *time.Time `db:"used_at"`
	IPAddress        string     `db:"ip_address"`
	UserAgent        string     `db:"user_agent"`
	CreatedAt        time.Time  `db:"created_at"`
}

// TwoFactorMatch is the full binding a code must satisfy to be consumed
type TwoFactorMatch struct {
	SessionTokenHash string
	UserID           int64
	EmailHash        string
	CodeHash         string
}

// TwoFactorChallenge is handed to the client after the password step
type TwoFactorChallenge struct {
	Code         string
	SessionToken string
	ExpiresAt    time.Time
}

// SafeUser is the client-facing projection of a user
type SafeUser struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	CPF           string     `json:"cpf"`
	Address       string     `json:"address"`
	IsAdmin       bool       `json:"isAdmin"`
	EmailVerified bool       `json:"emailVerified"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
}

// AdminUserView is the admin listing entry, which also exposes the internal id
type AdminUserView struct {
	InternalID int64 `json:"internalId"`
	IsActive   bool  `json:"isActive"`
	SafeUser
}
