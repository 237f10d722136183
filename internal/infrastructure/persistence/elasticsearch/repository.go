package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/domain/entity"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/metrics"
)

// Repository 知识库仓储，覆盖知识条目、向量与库绑定三个索引。
// 对 ES 的访问失败统一包装为 CodeBackendError，便于接口层按后端故障上报
type Repository struct {
	client *Client
}

// NewRepository 创建知识库仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

func (r *Repository) ensureIndices(ctx context.Context) error {
	if err := r.client.EnsureIndices(ctx); err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.Wrap(err, apperrors.CodeBackendError, "failed to ensure indices")
	}
	return nil
}

// UpsertSegment 整条替换式写入：先清理该 segment_id 的全部旧向量，
// 再用一次 bulk 写入知识文档与新向量，refresh 保证写后可读
func (r *Repository) UpsertSegment(ctx context.Context, seg *entity.KnowledgeSegment, vectors []entity.VectorRecord) error {
	if err := r.ensureIndices(ctx); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.UpsertSegment",
		trace.WithAttributes(
			attribute.String("segment_id", seg.SegmentID),
			attribute.Int("vector_count", len(vectors)),
		))
	defer span.End()

	if err := r.deleteVectorsBySegment(ctx, seg.SegmentID); err != nil {
		span.RecordError(err)
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(map[string]any{
		"index": map[string]any{"_index": r.client.KnowledgeIndex(), "_id": seg.SegmentID},
	}); err != nil {
		return fmt.Errorf("failed to encode bulk action: %w", err)
	}
	if err := enc.Encode(seg); err != nil {
		return fmt.Errorf("failed to encode knowledge document: %w", err)
	}

	for i := range vectors {
		if err := enc.Encode(map[string]any{
			"index": map[string]any{"_index": r.client.VectorIndex()},
		}); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(&vectors[i]); err != nil {
			return fmt.Errorf("failed to encode vector document: %w", err)
		}
	}

	start := time.Now()
	err := r.bulk(ctx, &buf)
	r.observe("upsert_segment", r.client.KnowledgeIndex(), start, err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// DeleteSegments 批量删除知识条目及其向量，单次 bulk 保证两个索引同批生效
func (r *Repository) DeleteSegments(ctx context.Context, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	if err := r.ensureIndices(ctx); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.DeleteSegments",
		trace.WithAttributes(attribute.Int("segment_count", len(segmentIDs))))
	defer span.End()

	// 先取出这些 segment 的向量文档 id
	vectorIDs, err := r.findVectorIDs(ctx, segmentIDs)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range segmentIDs {
		if err := enc.Encode(map[string]any{
			"delete": map[string]any{"_index": r.client.KnowledgeIndex(), "_id": id},
		}); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
	}
	for _, id := range vectorIDs {
		if err := enc.Encode(map[string]any{
			"delete": map[string]any{"_index": r.client.VectorIndex(), "_id": id},
		}); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
	}

	start := time.Now()
	err = r.bulk(ctx, &buf)
	r.observe("delete_segments", r.client.KnowledgeIndex(), start, err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetSegment 按 segment_id 读取知识条目，不存在时返回 found=false
func (r *Repository) GetSegment(ctx context.Context, segmentID string) (*entity.KnowledgeSegment, bool, error) {
	ctx, span := tracer.Start(ctx, "elasticsearch.GetSegment",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	start := time.Now()
	res, err := r.client.es.Get(r.client.KnowledgeIndex(), segmentID,
		r.client.es.Get.WithContext(ctx),
	)
	if err != nil {
		r.observe("get_segment", r.client.KnowledgeIndex(), start, err)
		span.RecordError(err)
		return nil, false, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to get knowledge document")
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		r.observe("get_segment", r.client.KnowledgeIndex(), start, nil)
		return nil, false, nil
	}
	if res.IsError() {
		err = apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("get knowledge document failed: status=%d", res.StatusCode))
		r.observe("get_segment", r.client.KnowledgeIndex(), start, err)
		span.RecordError(err)
		return nil, false, err
	}

	var doc struct {
		Found  bool                    `json:"found"`
		Source entity.KnowledgeSegment `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		r.observe("get_segment", r.client.KnowledgeIndex(), start, err)
		return nil, false, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode knowledge document")
	}
	r.observe("get_segment", r.client.KnowledgeIndex(), start, nil)
	if !doc.Found {
		return nil, false, nil
	}
	return &doc.Source, true, nil
}

// BindLibrary 将类别集合绑定到库，与已有绑定取并集后整体覆盖写入
func (r *Repository) BindLibrary(ctx context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error) {
	if libraryID == "" || len(categoryIDs) == 0 {
		return &entity.BindResult{SuccessCount: 0, FailedIDs: categoryIDs}, nil
	}
	if err := r.ensureIndices(ctx); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.BindLibrary",
		trace.WithAttributes(
			attribute.String("library_id", libraryID),
			attribute.Int("category_count", len(categoryIDs)),
		))
	defer span.End()

	existing, found, err := r.GetBinding(ctx, libraryID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	merged := categoryIDs
	if found {
		merged = unionStrings(existing.CategoryIDs, categoryIDs)
	}

	binding := entity.LibraryBinding{LibraryID: libraryID, CategoryIDs: merged}
	body, err := json.Marshal(&binding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal binding document: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.Index(r.client.BindingIndex(), bytes.NewReader(body),
		r.client.es.Index.WithContext(ctx),
		r.client.es.Index.WithDocumentID(libraryID),
		r.client.es.Index.WithRefresh("true"),
	)
	if err != nil {
		r.observe("bind_library", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to index binding document")
	}
	err = closeResponse(res, "index binding document")
	r.observe("bind_library", r.client.BindingIndex(), start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &entity.BindResult{SuccessCount: 1, FailedIDs: []string{}}, nil
}

// SetBinding 整体覆盖库的绑定集合，部分解绑时用于写回剩余类别
func (r *Repository) SetBinding(ctx context.Context, libraryID string, categoryIDs []string) error {
	if err := r.ensureIndices(ctx); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.SetBinding",
		trace.WithAttributes(
			attribute.String("library_id", libraryID),
			attribute.Int("category_count", len(categoryIDs)),
		))
	defer span.End()

	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	binding := entity.LibraryBinding{LibraryID: libraryID, CategoryIDs: categoryIDs}
	body, err := json.Marshal(&binding)
	if err != nil {
		return fmt.Errorf("failed to marshal binding document: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.Index(r.client.BindingIndex(), bytes.NewReader(body),
		r.client.es.Index.WithContext(ctx),
		r.client.es.Index.WithDocumentID(libraryID),
		r.client.es.Index.WithRefresh("true"),
	)
	if err != nil {
		r.observe("set_binding", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeBackendError, "failed to index binding document")
	}
	err = closeResponse(res, "index binding document")
	r.observe("set_binding", r.client.BindingIndex(), start, err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// UnbindLibrary 解除库的全部绑定，返回解除的类别数量
func (r *Repository) UnbindLibrary(ctx context.Context, libraryID string) (int, error) {
	if err := r.ensureIndices(ctx); err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.UnbindLibrary",
		trace.WithAttributes(attribute.String("library_id", libraryID)))
	defer span.End()

	// 删除前读出绑定内容以统计解除数量
	binding, found, err := r.GetBinding(ctx, libraryID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if !found {
		return 0, nil
	}

	query, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{"library_id": libraryID}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal unbind query: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.DeleteByQuery(
		[]string{r.client.BindingIndex()},
		bytes.NewReader(query),
		r.client.es.DeleteByQuery.WithContext(ctx),
		r.client.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		r.observe("unbind_library", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return 0, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to delete binding document")
	}
	err = closeResponse(res, "delete binding document")
	r.observe("unbind_library", r.client.BindingIndex(), start, err)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(binding.CategoryIDs), nil
}

// GetBinding 读取库绑定，不存在时返回 found=false
func (r *Repository) GetBinding(ctx context.Context, libraryID string) (*entity.LibraryBinding, bool, error) {
	ctx, span := tracer.Start(ctx, "elasticsearch.GetBinding",
		trace.WithAttributes(attribute.String("library_id", libraryID)))
	defer span.End()

	start := time.Now()
	res, err := r.client.es.Get(r.client.BindingIndex(), libraryID,
		r.client.es.Get.WithContext(ctx),
	)
	if err != nil {
		r.observe("get_binding", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return nil, false, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to get binding document")
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		r.observe("get_binding", r.client.BindingIndex(), start, nil)
		return nil, false, nil
	}
	if res.IsError() {
		err = apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("get binding document failed: status=%d", res.StatusCode))
		r.observe("get_binding", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return nil, false, err
	}

	var doc struct {
		Found  bool                  `json:"found"`
		Source entity.LibraryBinding `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		r.observe("get_binding", r.client.BindingIndex(), start, err)
		return nil, false, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode binding document")
	}
	r.observe("get_binding", r.client.BindingIndex(), start, nil)
	if !doc.Found {
		return nil, false, nil
	}
	return &doc.Source, true, nil
}

// LibraryExists 判断库是否存在绑定记录
func (r *Repository) LibraryExists(ctx context.Context, libraryID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "elasticsearch.LibraryExists",
		trace.WithAttributes(attribute.String("library_id", libraryID)))
	defer span.End()

	start := time.Now()
	res, err := r.client.es.Exists(r.client.BindingIndex(), libraryID,
		r.client.es.Exists.WithContext(ctx),
	)
	if err != nil {
		r.observe("library_exists", r.client.BindingIndex(), start, err)
		span.RecordError(err)
		return false, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to check library existence")
	}
	defer res.Body.Close()
	r.observe("library_exists", r.client.BindingIndex(), start, nil)

	return res.StatusCode == 200, nil
}

// SearchVectors 以 script_score 的余弦相似度在类别范围内检索向量，
// 返回按分数降序的命中，分数为 cosine + 1.0 的原始值
func (r *Repository) SearchVectors(ctx context.Context, queryVector []float32, categoryIDs []string, size int) ([]knowledge.VectorHit, error) {
	if len(categoryIDs) == 0 {
		return []knowledge.VectorHit{}, nil
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.SearchVectors",
		trace.WithAttributes(
			attribute.Int("category_count", len(categoryIDs)),
			attribute.Int("size", size),
		))
	defer span.End()

	body, err := json.Marshal(map[string]any{
		"size": size,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{
					"terms": map[string]any{"category_id": categoryIDs},
				},
				"script": map[string]any{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]any{"query_vector": queryVector},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vector query: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.Search(
		r.client.es.Search.WithContext(ctx),
		r.client.es.Search.WithIndex(r.client.VectorIndex()),
		r.client.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		r.observe("search_vectors", r.client.VectorIndex(), start, err)
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "vector search failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		err = apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("vector search failed: status=%d", res.StatusCode))
		r.observe("search_vectors", r.client.VectorIndex(), start, err)
		span.RecordError(err)
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					SegmentID  string `json:"segment_id"`
					VectorType string `json:"vector_type"`
					Text       string `json:"text"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		r.observe("search_vectors", r.client.VectorIndex(), start, err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode vector search response")
	}
	r.observe("search_vectors", r.client.VectorIndex(), start, nil)

	hits := make([]knowledge.VectorHit, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		hits = append(hits, knowledge.VectorHit{
			SegmentID:  hit.Source.SegmentID,
			VectorType: entity.VectorType(hit.Source.VectorType),
			Text:       hit.Source.Text,
			Score:      hit.Score,
		})
	}
	span.SetAttributes(attribute.Int("hit_count", len(hits)))
	return hits, nil
}

// SearchSegmentsByIDs 按 segment_id 集合批量读取知识条目
func (r *Repository) SearchSegmentsByIDs(ctx context.Context, segmentIDs []string, size int) ([]*entity.KnowledgeSegment, error) {
	if len(segmentIDs) == 0 {
		return []*entity.KnowledgeSegment{}, nil
	}

	ctx, span := tracer.Start(ctx, "elasticsearch.SearchSegmentsByIDs",
		trace.WithAttributes(attribute.Int("segment_count", len(segmentIDs))))
	defer span.End()

	body, err := json.Marshal(map[string]any{
		"size": size,
		"query": map[string]any{
			"terms": map[string]any{"_id": segmentIDs},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segment query: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.Search(
		r.client.es.Search.WithContext(ctx),
		r.client.es.Search.WithIndex(r.client.KnowledgeIndex()),
		r.client.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		r.observe("search_segments", r.client.KnowledgeIndex(), start, err)
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "segment search failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		err = apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("segment search failed: status=%d", res.StatusCode))
		r.observe("search_segments", r.client.KnowledgeIndex(), start, err)
		span.RecordError(err)
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source entity.KnowledgeSegment `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		r.observe("search_segments", r.client.KnowledgeIndex(), start, err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode segment search response")
	}
	r.observe("search_segments", r.client.KnowledgeIndex(), start, nil)

	segments := make([]*entity.KnowledgeSegment, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		segments = append(segments, &result.Hits.Hits[i].Source)
	}
	return segments, nil
}

func (r *Repository) deleteVectorsBySegment(ctx context.Context, segmentID string) error {
	query, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{"segment_id": segmentID}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %w", err)
	}

	start := time.Now()
	res, err := r.client.es.DeleteByQuery(
		[]string{r.client.VectorIndex()},
		bytes.NewReader(query),
		r.client.es.DeleteByQuery.WithContext(ctx),
		r.client.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		r.observe("delete_vectors", r.client.VectorIndex(), start, err)
		return apperrors.Wrap(err, apperrors.CodeBackendError, "failed to delete stale vectors")
	}
	err = closeResponse(res, "delete stale vectors")
	r.observe("delete_vectors", r.client.VectorIndex(), start, err)
	return err
}

func (r *Repository) findVectorIDs(ctx context.Context, segmentIDs []string) ([]string, error) {
	body, err := json.Marshal(map[string]any{
		"size":    10000,
		"_source": false,
		"query": map[string]any{
			"terms": map[string]any{"segment_id": segmentIDs},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vector id query: %w", err)
	}

	res, err := r.client.es.Search(
		r.client.es.Search.WithContext(ctx),
		r.client.es.Search.WithIndex(r.client.VectorIndex()),
		r.client.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "vector id search failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("vector id search failed: status=%d", res.StatusCode))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode vector id response")
	}

	ids := make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (r *Repository) bulk(ctx context.Context, body *bytes.Buffer) error {
	res, err := r.client.es.Bulk(bytes.NewReader(body.Bytes()),
		r.client.es.Bulk.WithContext(ctx),
		r.client.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackendError, "bulk request failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("bulk request failed: status=%d", res.StatusCode))
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackendError, "failed to decode bulk response")
	}
	if result.Errors {
		for _, item := range result.Items {
			for action, detail := range item {
				// 删除不存在的文档返回 404，视为成功
				if detail.Status >= 400 && detail.Status != 404 {
					return apperrors.New(apperrors.CodeBackendError, fmt.Sprintf("bulk %s failed: status=%d error=%s", action, detail.Status, string(detail.Error)))
				}
			}
		}
	}
	return nil
}

func (r *Repository) observe(operation, index string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ESOperationDuration.WithLabelValues(operation, index).Observe(time.Since(start).Seconds())
	metrics.ESOperationTotal.WithLabelValues(operation, index, status).Inc()
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
