package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
	"github.com/prperemyshlev/storefront-auth/internal/service"
	"go.uber.org/zap"
)

// RateLimitByUser limits authenticated routes per user and per client IP.
// It must run after AuthMiddleware.
func RateLimitByUser(limiter *ratelimit.Limiter, class ratelimit.ActionClass, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := requestInfo(c)
		subjects := []ratelimit.Subject{ratelimit.IPSubject(class, info.IP)}
		if claims := claimsFrom(c); claims != nil {
			subjects = append([]ratelimit.Subject{ratelimit.UserSubject(class, claims.UserID)}, subjects...)
		}

		res, err := limiter.CheckAll(c.Request.Context(), info, subjects...)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		if !res.Allowed {
			writeError(c, logger, &service.Error{
				Kind:      service.KindRateLimited,
				Message:   res.RetryMessage(),
				RateLimit: &res,
			})
			return
		}

		setRateLimitHeaders(c, res)
		c.Next()
	}
}
