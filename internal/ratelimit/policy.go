package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// ActionClass names a category of sensitive operation with its own counters
type ActionClass string

const (
	ClassLogin                ActionClass = "login"
	ClassPasswordResetRequest ActionClass = "password_reset_request"
	ClassPasswordResetSubmit  ActionClass = "password_reset_submit"
	ClassEmailVerification    ActionClass = "email_verification"
	ClassTwoFactorEmail       ActionClass = "two_factor_email"
	ClassTwoFactorIP          ActionClass = "two_factor_ip"
	ClassTwoFactorVerify      ActionClass = "two_factor_verify"
	ClassAdminAuth            ActionClass = "admin_auth"
	ClassAdminRead            ActionClass = "admin_read"
	ClassAdminWrite           ActionClass = "admin_write"
)

// Policy defines the thresholds of an action class
type Policy struct {
	Window      time.Duration
	MaxAttempts int
	// BlockDuration is applied on the first violation and doubles on each
	// subsequent one, up to MaxBlockDuration. Zero means the caller is only
	// held back until the window ends.
	BlockDuration    time.Duration
	MaxBlockDuration time.Duration
	// ViolationDecay resets the escalation counter after a quiet period.
	ViolationDecay time.Duration
}

// Validate reports whether the policy can be enforced
func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if p.BlockDuration < 0 || p.MaxBlockDuration < 0 || p.ViolationDecay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// blockFor returns the block applied for the n-th consecutive violation
func (p Policy) blockFor(violations int) time.Duration {
	if p.BlockDuration <= 0 || violations <= 0 {
		return 0
	}

	block := p.BlockDuration
	for i := 1; i < violations; i++ {
		if block > math.MaxInt64/2 {
			break
		}
		block *= 2
		if p.MaxBlockDuration > 0 && block >= p.MaxBlockDuration {
			return p.MaxBlockDuration
		}
	}
	if p.MaxBlockDuration > 0 && block > p.MaxBlockDuration {
		return p.MaxBlockDuration
	}
	return block
}

// DefaultPolicies returns the thresholds used by the storefront
func DefaultPolicies() map[ActionClass]Policy {
	return map[ActionClass]Policy{
		ClassLogin: {
			Window:           15 * time.Minute,
			MaxAttempts:      6,
			BlockDuration:    15 * time.Minute,
			MaxBlockDuration: 2 * time.Hour,
			ViolationDecay:   24 * time.Hour,
		},
		ClassPasswordResetRequest: {
			Window:      time.Hour,
			MaxAttempts: 3,
		},
		ClassPasswordResetSubmit: {
			Window:        15 * time.Minute,
			MaxAttempts:   5,
			BlockDuration: 30 * time.Minute,
		},
		ClassEmailVerification: {
			Window:      time.Hour,
			MaxAttempts: 5,
		},
		ClassTwoFactorEmail: {
			Window:        15 * time.Minute,
			MaxAttempts:   5,
			BlockDuration: 15 * time.Minute,
		},
		ClassTwoFactorIP: {
			Window:      15 * time.Minute,
			MaxAttempts: 10,
		},
		ClassTwoFactorVerify: {
			Window:           15 * time.Minute,
			MaxAttempts:      5,
			BlockDuration:    15 * time.Minute,
			MaxBlockDuration: time.Hour,
			ViolationDecay:   6 * time.Hour,
		},
		ClassAdminAuth: {
			Window:      time.Minute,
			MaxAttempts: 20,
		},
		ClassAdminRead: {
			Window:      time.Minute,
			MaxAttempts: 120,
		},
		ClassAdminWrite: {
			Window:      time.Minute,
			MaxAttempts: 30,
		},
	}
}
