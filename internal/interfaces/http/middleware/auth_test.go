package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/config"
	"kb-ext-api/pkg/errors"
)

func authTestRouter(cfg config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/retrieval", Auth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"records": []string{}})
	})
	return r
}

func TestAuth(t *testing.T) {
	cfg := config.AuthConfig{LegacyAPIKey: "your-api-key", MinKeyLength: 10}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   errors.ErrorCode
	}{
		{"missing header", "", http.StatusForbidden, errors.CodeAuthHeaderInvalid},
		{"no space", "Bearertoken", http.StatusForbidden, errors.CodeAuthHeaderInvalid},
		{"wrong scheme", "Basic abcdefghijk", http.StatusForbidden, errors.CodeAuthHeaderInvalid},
		{"legacy key passes", "Bearer your-api-key", http.StatusOK, 0},
		{"short key rejected", "Bearer short", http.StatusForbidden, errors.CodeAuthRejected},
		{"long key passes", "Bearer abcdefghijklmnop", http.StatusOK, 0},
	}

	r := authTestRouter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/retrieval", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != 0 {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.EqualValues(t, tt.wantCode, body["error_code"])
			}
		})
	}
}

func TestAuthDefaultMinKeyLength(t *testing.T) {
	// 未配置最小长度时回退到默认值
	r := authTestRouter(config.AuthConfig{LegacyAPIKey: "your-api-key"})

	req := httptest.NewRequest(http.MethodPost, "/retrieval", nil)
	req.Header.Set("Authorization", "Bearer 123456789")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/retrieval", nil)
	req.Header.Set("Authorization", "Bearer 1234567890")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
