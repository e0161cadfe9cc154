package dto

// LoginRequest represents a password login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TwoFactorLoginRequest completes a login with the emailed code
type TwoFactorLoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Code         string `json:"code"`
	SessionToken string `json:"sessionToken"`
}

// EmailRequest carries a single email address
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password using a reset token
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// TokenRequest carries a one-time token
type TokenRequest struct {
	Token string `json:"token"`
}

// SetFlagRequest toggles a boolean user attribute
type SetFlagRequest struct {
	Value *bool `json:"value"`
}
