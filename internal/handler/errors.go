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

var kindStatus = map[service.Kind]int{
	service.KindInvalidInput:    http.StatusBadRequest,
	service.KindUnauthenticated: http.StatusUnauthorized,
	service.KindForbidden:       http.StatusForbidden,
	service.KindNotFound:        http.StatusNotFound,
	service.KindRateLimited:     http.StatusTooManyRequests,
	service.KindInternal:        http.StatusInternalServerError,
}

// writeError maps a service error to its status and aborts the request.
// Internal details are logged, never returned.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	se := service.AsError(err)
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := dto.Response{Success: false, Error: se.Message}

	switch se.Kind {
	case service.KindInternal:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(se.Err),
		)
		resp.Error = service.MsgInternal
	case service.KindRateLimited:
		if se.RateLimit != nil {
			setRateLimitHeaders(c, *se.RateLimit)
			reset := se.RateLimit.ResetTime.UTC()
			resp.ResetTime = &reset
			resp.RetryAfter = se.RateLimit.RetryAfterSeconds()
		}
	case service.KindUnauthenticated:
		resp.EmailNotVerified = se.EmailNotVerified
	case service.KindForbidden:
		if se.Admin != nil {
			resp.TokenIsAdmin = boolPtr(se.Admin.TokenIsAdmin)
			resp.DBIsAdmin = boolPtr(se.Admin.DBIsAdmin)
		}
	}

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.Response{Success: false, Error: msg})
}

func setRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.ResetTime.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	}
	if !res.Allowed {
		c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
	}
}

func boolPtr(b bool) *bool {
	return &b
}
