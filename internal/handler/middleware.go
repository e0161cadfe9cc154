package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/domain"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"go.uber.org/zap"
)

const (
	claimsKey = "claims"
	userIDKey = "user_id"
)

// AuthMiddleware validates the session token and adds its claims to the context
func AuthMiddleware(authService service.AuthService, cookies *AuthCookies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authService.ValidateToken(c.Request.Context(), cookies.Token(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userIDKey, claims.UserID)

		c.Next()
	}
}

// RequireAdmin lets the request through only when both the token claim and
// the live is_admin flag grant admin access. Rate limiting is left to the
// route's own class.
func RequireAdmin(adminService service.AdminService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := adminService.Authorize(c.Request.Context(), claimsFrom(c), requestInfo(c)); err != nil {
			writeError(c, logger, err)
			return
		}

		c.Next()
	}
}

func claimsFrom(c *gin.Context) *domain.SessionClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*domain.SessionClaims)
	return claims
}

func requestInfo(c *gin.Context) ratelimit.RequestInfo {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return ratelimit.RequestInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Path:      path,
	}
}
