package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/dto"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves the admin back office endpoints
type AdminHandler struct {
	authService  service.AuthService
	adminService service.AdminService
	limiter      *ratelimit.Limiter
	cookies      *AuthCookies
	logger       *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	authService service.AuthService,
	adminService service.AdminService,
	limiter *ratelimit.Limiter,
	cookies *AuthCookies,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		authService:  authService,
		adminService: adminService,
		limiter:      limiter,
		cookies:      cookies,
		logger:       logger,
	}
}

// RegisterRoutes mounts the admin endpoints on rg. Every route requires a
// session; user management additionally requires admin access.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(AuthMiddleware(h.authService, h.cookies, h.logger))
	rg.GET("/verify", h.Verify)

	users := rg.Group("/users", RequireAdmin(h.adminService, h.logger))
	users.GET("", RateLimitByUser(h.limiter, ratelimit.ClassAdminRead, h.logger), h.ListUsers)
	users.PATCH("/:id/admin", RateLimitByUser(h.limiter, ratelimit.ClassAdminWrite, h.logger), h.SetAdmin)
	users.PATCH("/:id/active", RateLimitByUser(h.limiter, ratelimit.ClassAdminWrite, h.logger), h.SetActive)
}

// Verify reports both halves of the admin check
// @Summary Verify admin access
// @Tags admin
// @Produce json
// @Success 200 {object} dto.Response
// @Failure 401 {object} dto.Response
// @Failure 403 {object} dto.Response
// @Router /admin/verify [get]
func (h *AdminHandler) Verify(c *gin.Context) {
	decision, err := h.adminService.VerifyAdmin(c.Request.Context(), claimsFrom(c), requestInfo(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.Response{
		Success:      true,
		Message:      "Admin access verified",
		TokenIsAdmin: boolPtr(decision.TokenIsAdmin),
		DBIsAdmin:    boolPtr(decision.DBIsAdmin),
	})
}

// ListUsers returns a page of users
// @Summary List users
// @Tags admin
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.UserListResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "limit must be a number")
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		badRequest(c, "offset must be a number")
		return
	}

	users, err := h.adminService.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.UserListResponse{
		Success: true,
		Users:   users,
		Limit:   limit,
		Offset:  offset,
	})
}

// SetAdmin grants or revokes admin access
// @Summary Set admin flag
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User id"
// @Param request body dto.SetFlagRequest true "New value"
// @Success 200 {object} dto.AdminUserResponse
// @Router /admin/users/{id}/admin [patch]
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	id, value, ok := h.flagRequest(c)
	if !ok {
		return
	}

	user, err := h.adminService.SetUserAdmin(c.Request.Context(), claimsFrom(c), id, value)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.AdminUserResponse{Success: true, Message: "Admin flag updated", User: user})
}

// SetActive enables or disables an account
// @Summary Set active flag
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User id"
// @Param request body dto.SetFlagRequest true "New value"
// @Success 200 {object} dto.AdminUserResponse
// @Router /admin/users/{id}/active [patch]
func (h *AdminHandler) SetActive(c *gin.Context) {
	id, value, ok := h.flagRequest(c)
	if !ok {
		return
	}

	user, err := h.adminService.SetUserActive(c.Request.Context(), claimsFrom(c), id, value)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.AdminUserResponse{Success: true, Message: "Account state updated", User: user})
}

func (h *AdminHandler) flagRequest(c *gin.Context) (int64, bool, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid user id")
		return 0, false, false
	}

	var req dto.SetFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		badRequest(c, "value is required")
		return 0, false, false
	}

	return id, *req.Value, true
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
