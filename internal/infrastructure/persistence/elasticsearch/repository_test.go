package elasticsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/config"
	"kb-ext-api/internal/domain/entity"
	apperrors "kb-ext-api/pkg/errors"
)

// newTestRepository 用 httptest 伪装 ES 节点。
// go-elasticsearch v8 校验产品响应头，这里统一补上
func newTestRepository(t *testing.T, handler http.HandlerFunc) (*Repository, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(&config.ElasticsearchConfig{Addresses: []string{srv.URL}}, 4)
	require.NoError(t, err)
	return NewRepository(client), srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestGetSegmentBackendError(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":{"reason":"shard failure"}}`)
	})

	_, found, err := repo.GetSegment(context.Background(), "seg-1")
	assert.False(t, found)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}

func TestGetSegmentMissing(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"found":false}`)
	})

	seg, found, err := repo.GetSegment(context.Background(), "seg-missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, seg)
}

func TestSearchVectorsBackendError(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"error":{"reason":"no shard available"}}`)
	})

	_, err := repo.SearchVectors(context.Background(), []float32{0.1, 0.2}, []string{"cat-1"}, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}

func TestSearchVectorsTransportError(t *testing.T) {
	repo, srv := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := repo.SearchVectors(context.Background(), []float32{0.1, 0.2}, []string{"cat-1"}, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}

func TestGetBindingBackendError(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, `{"error":{"reason":"gateway"}}`)
	})

	_, found, err := repo.GetBinding(context.Background(), "lib-1")
	assert.False(t, found)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}

func TestUpsertSegmentBulkRejected(t *testing.T) {
	repo, _ := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			// 索引已存在
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			writeJSON(w, http.StatusOK, `{"deleted":0}`)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			writeJSON(w, http.StatusInternalServerError, `{"error":{"reason":"rejected"}}`)
		default:
			writeJSON(w, http.StatusOK, `{}`)
		}
	})

	seg := &entity.KnowledgeSegment{SegmentID: "seg-1"}
	vectors := []entity.VectorRecord{{
		SegmentID:  "seg-1",
		VectorType: entity.VectorTypeQuestion,
		Vector:     []float32{0.1, 0.2, 0.3, 0.4},
		Text:       "如何缴纳社保",
		CategoryID: "cat-1",
	}}

	err := repo.UpsertSegment(context.Background(), seg, vectors)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}
