package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeAuthHeaderInvalid, http.StatusForbidden},
		{CodeAuthRejected, http.StatusForbidden},
		{CodeKnowledgeNotFound, http.StatusNotFound},
		{CodeDocumentNotFound, http.StatusNotFound},
		{CodeInvalidParam, http.StatusUnprocessableEntity},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternalError, http.StatusInternalServerError},
		{CodeBackendError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus, "code %d", tt.code)
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, CodeBackendError, "search failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[5003]")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsCode(err, CodeBackendError))
	assert.False(t, IsCode(err, CodeInternalError))
}

func TestWithErrorDoesNotMutate(t *testing.T) {
	base := ErrKnowledgeNotFound
	derived := base.WithError(stderrors.New("miss"))

	assert.Nil(t, base.Err)
	assert.NotNil(t, derived.Err)
	assert.Equal(t, base.Code, derived.Code)
}

func TestWithMessage(t *testing.T) {
	err := ErrInternalError.WithMessage("document not yet parsed")
	assert.Equal(t, CodeInternalError, err.Code)
	assert.Equal(t, "document not yet parsed", err.Message)
	assert.Equal(t, "internal server error", ErrInternalError.Message)
}

func TestAsAppError(t *testing.T) {
	appErr := AsAppError(ErrDocumentNotFound)
	assert.Equal(t, CodeDocumentNotFound, appErr.Code)

	// 包装链中的 AppError 也能取出
	wrapped := fmt.Errorf("handler: %w", ErrAuthRejected)
	assert.Equal(t, CodeAuthRejected, AsAppError(wrapped).Code)

	// 未知错误兜底为内部错误
	plain := AsAppError(stderrors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, CodeInternalError, plain.Code)
	assert.ErrorContains(t, plain, "boom")
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(ErrInvalidParam))
	assert.False(t, IsAppError(stderrors.New("plain")))
}
