package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/prperemyshlev/storefront-auth/internal/repository"
	"github.com/prperemyshlev/storefront-auth/internal/utils"
)

// ErrInvalidCredentials is returned for both unknown emails and wrong passwords
var ErrInvalidCredentials = errors.New("invalid email or password")

// CredentialVerifier checks an email/password pair against users whose email
// may be stored either as plaintext or as searchable ciphertext.
type CredentialVerifier struct {
	users     repository.UserRepository
	codec     *fieldcrypt.Codec
	dummyHash string
}

// NewCredentialVerifier creates a verifier. bcryptCost should match the cost
// of stored hashes so that unknown users take as long as real ones.
func NewCredentialVerifier(users repository.UserRepository, codec *fieldcrypt.Codec, bcryptCost int) (*CredentialVerifier, error) {
	dummy, err := utils.HashPassword("storefront-timing-equalizer", bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &CredentialVerifier{
		users:     users,
		codec:     codec,
		dummyHash: dummy,
	}, nil
}

// LoginWithEncryptedData returns the matching users row, still encrypted.
// It does not look at is_active or email_verified_at.
func (v *CredentialVerifier) LoginWithEncryptedData(ctx context.Context, email, password string) (domain.Row, error) {
	email = utils.SanitizeEmail(email)
	encrypted := v.codec.EncryptSearchable("users", "email", email)

	row, err := v.users.FindByEmail(ctx, email, encrypted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.CheckPasswordHash(password, v.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash := row.String("password_hash")
	if hash == "" {
		utils.CheckPasswordHash(password, v.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if !utils.CheckPasswordHash(password, hash) {
		return nil, ErrInvalidCredentials
	}

	return row, nil
}
