// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/config"
	"kb-ext-api/internal/infrastructure/persistence/redis"
)

// RateLimit 按客户端 IP + 路由的滑动窗口限流中间件。
// 限流器故障时放行，避免 redis 抖动影响业务。
func RateLimit(cfg config.RateLimitConfig, limiter *redis.RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = 100
	}

	return func(c *gin.Context) {
		key := redis.BuildClientRateLimitKey(c.ClientIP(), c.FullPath())

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Second)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error_code": http.StatusTooManyRequests,
				"error_msg":  "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
