// Package handler 实现 HTTP 接口处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/interfaces/http/dto"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

// respondError 将错误映射为 Dify 风格的错误响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err,
			"path", c.Request.URL.Path, "method", c.Request.Method)
	}
	c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
		ErrorCode: int(appErr.Code),
		ErrorMsg:  appErr.Message,
	})
}

// respondBindError 请求体校验失败
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
		ErrorCode: int(apperrors.CodeInvalidParam),
		ErrorMsg:  err.Error(),
	})
}
