package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/config"
	apperrors "kb-ext-api/pkg/errors"
)

func newTestXinference(t *testing.T, handler http.HandlerFunc) *XinferenceClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewXinferenceClient(&config.EmbeddingConfig{
		Endpoint: srv.URL,
		Model:    "bge-m3",
		Timeout:  5 * time.Second,
	})
}

func embedHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestXinferenceEmbedBatch(t *testing.T) {
	client := newTestXinference(t, embedHandler(
		`{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}]}`))

	vectors, err := client.EmbedBatch(context.Background(), []string{"甲", "乙"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// 按 index 还原输入顺序
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestXinferenceEmbedMissingVector(t *testing.T) {
	// 2xx 响应但 data 项缺失 embedding 字段
	client := newTestXinference(t, embedHandler(`{"data":[{"index":0}]}`))

	vec, err := client.Embed(context.Background(), "如何缴纳社保")
	require.Error(t, err)
	assert.Nil(t, vec)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAdapterError))
}

func TestXinferenceEmbedBatchCountMismatch(t *testing.T) {
	client := newTestXinference(t, embedHandler(`{"data":[{"index":0,"embedding":[0.1]}]}`))

	_, err := client.EmbedBatch(context.Background(), []string{"甲", "乙"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAdapterError))
}

func TestXinferenceEmbedBatchIndexOutOfRange(t *testing.T) {
	client := newTestXinference(t, embedHandler(`{"data":[{"index":7,"embedding":[0.1]}]}`))

	_, err := client.EmbedBatch(context.Background(), []string{"甲"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAdapterError))
}

func TestXinferenceEmbedBackendStatusError(t *testing.T) {
	client := newTestXinference(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := client.Embed(context.Background(), "查询")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAdapterError))
}
