// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/config"
	"kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

const defaultMinKeyLength = 10

// Auth Dify 外部知识库 Bearer 认证中间件。
// 固定密钥直通，其他密钥按最小长度校验。
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	minLen := cfg.MinKeyLength
	if minLen <= 0 {
		minLen = defaultMinKeyLength
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if header == "" || len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": errors.CodeAuthHeaderInvalid,
				"error_msg":  "Invalid Authorization header format. Expected 'Bearer <api-key>' format.",
			})
			return
		}

		token := parts[1]
		if token != cfg.LegacyAPIKey && len(token) < minLen {
			logger.Warn(c.Request.Context(), "authorization rejected",
				"path", c.Request.URL.Path, "key_length", len(token))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": errors.CodeAuthRejected,
				"error_msg":  "Authorization failed",
			})
			return
		}

		c.Next()
	}
}
