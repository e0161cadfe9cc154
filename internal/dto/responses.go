package dto

import (
	"time"

	"github.com/prperemyshlev/storefront-auth/internal/domain"
)

// Response is the envelope of every auth endpoint
type Response struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message,omitempty"`
	Error             string           `json:"error,omitempty"`
	User              *domain.SafeUser `json:"user,omitempty"`
	EmailNotVerified  bool             `json:"emailNotVerified,omitempty"`
	RequiresTwoFactor bool             `json:"requiresTwoFactor,omitempty"`
	SessionToken      string           `json:"sessionToken,omitempty"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	ResetTime         *time.Time       `json:"resetTime,omitempty"`
	RetryAfter        int              `json:"retryAfter,omitempty"`
	TokenIsAdmin      *bool            `json:"tokenIsAdmin,omitempty"`
	DBIsAdmin         *bool            `json:"dbIsAdmin,omitempty"`
}

// UserListResponse is returned by the admin user listing
type UserListResponse struct {
	Success bool                   `json:"success"`
	Users   []domain.AdminUserView `json:"users"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// AdminUserResponse is returned by admin mutations
type AdminUserResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	User    *domain.AdminUserView `json:"user"`
}
