package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/fieldcrypt"
	"github.com/segmentio/ksuid"
)

const (
	// PlaceholderProtected replaces values that are still ciphertext
	PlaceholderProtected = "[protected]"
	// PlaceholderEmpty replaces missing PII
	PlaceholderEmpty = "Not provided"
)

// publicIDSpace namespaces derived public ids
var publicIDSpace = uuid.MustParse("8d6f3c3e-2a4b-4f0e-9a57-5b1e0c7d9f21")

// Projector builds client-facing views of users
type Projector struct {
	idKey []byte
}

// NewProjector creates a projector. idKey keys the public id derivation.
func NewProjector(idKey string) *Projector {
	return &Projector{idKey: []byte(idKey)}
}

// ProcessSafeUserData projects a decrypted user. It never exposes the
// password hash, the internal id, or ciphertext.
func (p *Projector) ProcessSafeUserData(u *domain.User) domain.SafeUser {
	return domain.SafeUser{
		ID:            p.PublicID(u),
		Name:          safeField(u.Name),
		Email:         safeField(u.Email),
		Phone:         safeField(u.Phone),
		CPF:           safeField(u.CPF),
		Address:       safeField(u.Address),
		IsAdmin:       u.IsAdmin,
		EmailVerified: u.IsEmailVerified(),
		LastLogin:     u.LastLogin,
	}
}

// AdminView projects a user for the admin listing
func (p *Projector) AdminView(u *domain.User) domain.AdminUserView {
	return domain.AdminUserView{
		InternalID: u.ID,
		IsActive:   u.IsActive,
		SafeUser:   p.ProcessSafeUserData(u),
	}
}

// PublicID returns the persisted public uuid, or one derived from the
// internal id with a keyed hash. A random id is used only when there is
// nothing to derive from.
func (p *Projector) PublicID(u *domain.User) string {
	if u.PublicUUID != "" {
		if id, err := uuid.Parse(u.PublicUUID); err == nil {
			return id.String()
		}
	}

	if u.ID > 0 && len(p.idKey) > 0 {
		h := hmac.New(sha256.New, p.idKey)
		return uuid.NewHash(h, publicIDSpace, []byte(strconv.FormatInt(u.ID, 10)), 8).String()
	}

	return ksuid.New().String()
}

func safeField(v string) string {
	switch {
	case fieldcrypt.IsCiphertext(v):
		return PlaceholderProtected
	case strings.TrimSpace(v) == "":
		return PlaceholderEmpty
	default:
		return v
	}
}
