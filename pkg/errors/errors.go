// Package errors 提供统一的错误定义
//
// 错误码直接用于 Dify 外部知识库 API 的错误响应体
// {"error_code": int, "error_msg": string}，不要随意改动取值。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode int

// 预定义错误码
const (
	// 认证错误 (1xxx)
	CodeAuthHeaderInvalid ErrorCode = 1001 // Authorization 头缺失或格式错误
	CodeAuthRejected      ErrorCode = 1002 // API Key 校验失败

	// 资源错误 (2xxx)
	CodeKnowledgeNotFound ErrorCode = 2001 // 知识库（library）不存在
	CodeDocumentNotFound  ErrorCode = 2002 // 文档不存在或尚未解析完成

	// 业务错误 (4xxx)
	CodeInvalidParam ErrorCode = 4001 // 请求参数校验失败

	// 内部/外部服务错误 (5xxx)
	CodeInternalError  ErrorCode = 5001 // 未分类的内部错误
	CodeAdapterError   ErrorCode = 5002 // embedding/rerank 服务调用失败
	CodeBackendError   ErrorCode = 5003 // Elasticsearch 调用失败
	CodeProcessorError ErrorCode = 5004 // 文档处理服务（worker/RAGFlow）失败
	CodeTimeout        ErrorCode = 5005 // 外部调用超时
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"error_code"`
	Message    string    `json:"error_msg"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// WithMessage 替换错误消息，保留错误码与状态码
func (e *AppError) WithMessage(msg string) *AppError {
	clone := *e
	clone.Message = msg
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeAuthHeaderInvalid, CodeAuthRejected:
		// Dify 对认证失败约定返回 403 而非 401
		return http.StatusForbidden
	case CodeKnowledgeNotFound, CodeDocumentNotFound:
		return http.StatusNotFound
	case CodeInvalidParam:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrAuthHeaderMissing = New(CodeAuthHeaderInvalid, "Missing Authorization header")
	ErrAuthHeaderFormat  = New(CodeAuthHeaderInvalid, "Invalid Authorization header format. Expected 'Bearer <api-key>' format.")
	ErrAuthRejected      = New(CodeAuthRejected, "Authorization failed")

	ErrKnowledgeNotFound = New(CodeKnowledgeNotFound, "The knowledge base does not exist")
	ErrDocumentNotFound  = New(CodeDocumentNotFound, "Document not found")

	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInternalError = New(CodeInternalError, "internal server error")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal server error")
}

// IsCode 检查错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
