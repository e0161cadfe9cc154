package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/dto"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"go.uber.org/zap"
)

const (
	msgInvalidBody        = "Invalid request body"
	msgResetRequested     = "If an account exists for this email, a password reset link has been sent"
	msgVerificationResent = "If this email needs verification, a new link has been sent"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService service.AuthService
	cookies     *AuthCookies
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, cookies *AuthCookies, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// RegisterRoutes mounts the auth endpoints on rg
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.POST("/login/2fa", h.LoginTwoFactor)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", AuthMiddleware(h.authService, h.cookies, h.logger), h.Me)
	rg.POST("/password-reset/request", h.RequestPasswordReset)
	rg.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	rg.POST("/verify-email", h.VerifyEmail)
	rg.POST("/verify-email/resend", h.ResendVerification)
}

// Login handles the password step
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.Response
// @Failure 400 {object} dto.Response
// @Failure 401 {object} dto.Response
// @Failure 403 {object} dto.Response
// @Failure 429 {object} dto.Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), &req, requestInfo(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.writeLogin(c, res)
}

// LoginTwoFactor completes a login with the emailed code
// @Summary Complete two-factor login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.TwoFactorLoginRequest true "Two-factor login request"
// @Success 200 {object} dto.Response
// @Failure 400 {object} dto.Response
// @Failure 401 {object} dto.Response
// @Failure 429 {object} dto.Response
// @Router /auth/login/2fa [post]
func (h *AuthHandler) LoginTwoFactor(c *gin.Context) {
	var req dto.TwoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	res, err := h.authService.LoginWithTwoFactor(c.Request.Context(), &req, requestInfo(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.writeLogin(c, res)
}

func (h *AuthHandler) writeLogin(c *gin.Context, res *service.LoginResult) {
	if res.TwoFactor != nil {
		expiresAt := res.TwoFactor.ExpiresAt.UTC()
		c.JSON(http.StatusOK, dto.Response{
			Success:           true,
			Message:           "Verification code sent to your email",
			RequiresTwoFactor: true,
			SessionToken:      res.TwoFactor.SessionToken,
			ExpiresAt:         &expiresAt,
		})
		return
	}

	h.cookies.Set(c, res.Token, res.ExpiresAt)

	expiresAt := res.ExpiresAt.UTC()
	c.JSON(http.StatusOK, dto.Response{
		Success:   true,
		Message:   "Login successful",
		User:      res.User,
		ExpiresAt: &expiresAt,
	})
}

// Logout clears the session cookies. Tokens are not revoked server-side.
// @Summary Logout user
// @Tags auth
// @Produce json
// @Success 200 {object} dto.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	h.cookies.Clear(c)

	c.JSON(http.StatusOK, dto.Response{
		Success: true,
		Message: "Logged out successfully",
	})
}

// Me returns the current user
// @Summary Get current user profile
// @Tags auth
// @Produce json
// @Success 200 {object} dto.Response
// @Failure 401 {object} dto.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context(), claimsFrom(c))
	if err != nil {
		if service.AsError(err).Kind == service.KindUnauthenticated {
			h.cookies.Clear(c)
		}
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.Response{Success: true, User: user})
}

// RequestPasswordReset mails a reset link
// @Summary Request password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.Response
// @Failure 400 {object} dto.Response
// @Failure 429 {object} dto.Response
// @Router /auth/password-reset/request [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email, requestInfo(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.Response{Success: true, Message: msgResetRequested})
}

// ConfirmPasswordReset sets a new password
// @Summary Confirm password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Token and new password"
// @Success 200 {object} dto.Response
// @Failure 400 {object} dto.Response
// @Failure 429 {object} dto.Response
// @Router /auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req, requestInfo(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.cookies.Clear(c)
	c.JSON(http.StatusOK, dto.Response{Success: true, Message: "Password has been reset"})
}

// VerifyEmail confirms an email address
// @Summary Verify email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "Verification token"
// @Success 200 {object} dto.Response
// @Failure 400 {object} dto.Response
// @Failure 404 {object} dto.Response
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req.Token, requestInfo(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.Response{Success: true, Message: "Email verified"})
}

// ResendVerification mails a new verification link
// @Summary Resend verification email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.Response
// @Failure 429 {object} dto.Response
// @Router /auth/verify-email/resend [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email, requestInfo(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.Response{Success: true, Message: msgVerificationResent})
}
