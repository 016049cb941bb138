// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tenantstore/internal/config"
)

// TenantRateLimiter 按租户的限流器接口
type TenantRateLimiter interface {
	Allow(ctx context.Context, tenantID string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按租户限流中间件，挂在租户激活之后
func RateLimit(cfg config.RateLimitConfig, limiter TenantRateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tenantID := ActiveTenantID(c)
		if tenantID == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), tenantID, cfg.Requests, cfg.Window)
		if err != nil {
			// 限流器故障时放行，避免影响业务
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
