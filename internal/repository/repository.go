package repository

import (
	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User              UserRepository
	PasswordReset     OneTimeTokenRepository
	EmailVerification OneTimeTokenRepository
	TwoFactor         TwoFactorRepository
}

// NewRepositories creates all repositories. twoFactorStore selects where
// pending codes live: "postgres" or "memory".
func NewRepositories(db *database.Postgres, twoFactorStore string) *Repositories {
	repos := &Repositories{
		User:              NewUserRepository(db),
		PasswordReset:     NewOneTimeTokenRepository(db, domain.PasswordResetToken),
		EmailVerification: NewOneTimeTokenRepository(db, domain.EmailVerificationToken),
	}

	if twoFactorStore == "memory" {
		repos.TwoFactor = NewMemoryTwoFactorRepository()
	} else {
		repos.TwoFactor = NewTwoFactorRepository(db)
	}

	return repos
}
