package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-ext-api/internal/domain/entity"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
	"kb-ext-api/pkg/metrics"
)

var tracer = otel.Tracer("application/knowledge")

// Service 知识条目管理与检索服务
type Service struct {
	store    Store
	embedder Embedder
}

// NewService 创建知识服务
func NewService(store Store, embedder Embedder) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
	}
}

// Upsert 新增或整条替换知识条目，同步派生并写入向量。
// 相似问题复用主问题的向量，答案只对首条生成向量。
func (s *Service) Upsert(ctx context.Context, seg *entity.KnowledgeSegment) error {
	ctx, span := tracer.Start(ctx, "knowledge.Upsert",
		trace.WithAttributes(attribute.String("segment_id", seg.SegmentID)))
	defer span.End()

	if seg.SegmentID == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "segment_id is required")
	}
	if len(seg.Answers) == 0 {
		return apperrors.New(apperrors.CodeInvalidParam, "at least one answer is required")
	}
	if seg.KnowledgeType == entity.KnowledgeTypeFAQ && strings.TrimSpace(seg.Question) == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "question is required for faq knowledge")
	}

	vectors, err := s.deriveVectors(ctx, seg)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.store.UpsertSegment(ctx, seg, vectors); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Info(ctx, "knowledge segment indexed",
		"segment_id", seg.SegmentID,
		"vector_count", len(vectors),
	)
	return nil
}

// deriveVectors 为知识条目生成向量记录
func (s *Service) deriveVectors(ctx context.Context, seg *entity.KnowledgeSegment) ([]entity.VectorRecord, error) {
	var vectors []entity.VectorRecord

	if strings.TrimSpace(seg.Question) != "" {
		questionVector, err := s.embedder.Embed(ctx, seg.Question)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, entity.VectorRecord{
			SegmentID:  seg.SegmentID,
			VectorType: entity.VectorTypeQuestion,
			Vector:     questionVector,
			Text:       seg.Question,
			CategoryID: seg.CategoryID,
		})

		// 相似问题复用主问题向量，避免逐条调用向量化服务
		for _, similar := range seg.SimilarQuestions {
			if strings.TrimSpace(similar) == "" {
				continue
			}
			vectors = append(vectors, entity.VectorRecord{
				SegmentID:  seg.SegmentID,
				VectorType: entity.VectorTypeSimilarQuestion,
				Vector:     questionVector,
				Text:       similar,
				CategoryID: seg.CategoryID,
			})
		}
	}

	if answer := seg.FirstAnswerContent(); answer != "" {
		answerVector, err := s.embedder.Embed(ctx, answer)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, entity.VectorRecord{
			SegmentID:  seg.SegmentID,
			VectorType: entity.VectorTypeAnswer,
			Vector:     answerVector,
			Text:       answer,
			CategoryID: seg.CategoryID,
		})
	}

	return vectors, nil
}

// Delete 批量删除知识条目及其向量
func (s *Service) Delete(ctx context.Context, segmentIDs []string) error {
	ctx, span := tracer.Start(ctx, "knowledge.Delete",
		trace.WithAttributes(attribute.Int("segment_count", len(segmentIDs))))
	defer span.End()

	if len(segmentIDs) == 0 {
		return apperrors.New(apperrors.CodeInvalidParam, "segment_ids is required")
	}
	for _, id := range segmentIDs {
		if strings.TrimSpace(id) == "" {
			return apperrors.New(apperrors.CodeInvalidParam, "segment_ids must not contain empty values")
		}
	}

	return s.store.DeleteSegments(ctx, segmentIDs)
}

// Bind 将类别集合绑定到库，与既有绑定取并集
func (s *Service) Bind(ctx context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Bind",
		trace.WithAttributes(attribute.String("library_id", libraryID)))
	defer span.End()

	return s.store.BindLibrary(ctx, libraryID, categoryIDs)
}

// Unbind 解除库的全部类别绑定，返回解除数量
func (s *Service) Unbind(ctx context.Context, libraryID string, categoryIDs []string, deleteType string) (*entity.BindResult, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Unbind",
		trace.WithAttributes(
			attribute.String("library_id", libraryID),
			attribute.String("delete_type", deleteType),
		))
	defer span.End()

	if deleteType == "part" {
		return s.unbindPart(ctx, libraryID, categoryIDs)
	}

	// delete_type=all：整体删除绑定，success_count 为删除前的类别数
	count, err := s.store.UnbindLibrary(ctx, libraryID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &entity.BindResult{SuccessCount: count, FailedIDs: []string{}}, nil
}

// unbindPart 从绑定集合中剔除指定类别，未绑定的类别计入 failed_ids
func (s *Service) unbindPart(ctx context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error) {
	binding, found, err := s.store.GetBinding(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &entity.BindResult{SuccessCount: 0, FailedIDs: categoryIDs}, nil
	}

	bound := make(map[string]bool, len(binding.CategoryIDs))
	for _, id := range binding.CategoryIDs {
		bound[id] = true
	}

	removed := 0
	failed := []string{}
	for _, id := range categoryIDs {
		if bound[id] {
			delete(bound, id)
			removed++
		} else {
			failed = append(failed, id)
		}
	}

	remaining := make([]string, 0, len(bound))
	for _, id := range binding.CategoryIDs {
		if bound[id] {
			remaining = append(remaining, id)
		}
	}

	if removed > 0 {
		if err := s.store.SetBinding(ctx, libraryID, remaining); err != nil {
			return nil, err
		}
	}
	return &entity.BindResult{SuccessCount: removed, FailedIDs: failed}, nil
}

// Exists 判断库是否存在
func (s *Service) Exists(ctx context.Context, libraryID string) (bool, error) {
	return s.store.LibraryExists(ctx, libraryID)
}

// Search 在库可见范围内做语义搜索，返回完整知识条目
func (s *Service) Search(ctx context.Context, query, libraryID string, limit int) ([]*entity.KnowledgeSegment, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Search",
		trace.WithAttributes(
			attribute.String("library_id", libraryID),
			attribute.Int("limit", limit),
		))
	defer span.End()

	if limit <= 0 {
		limit = 10
	}

	binding, found, err := s.store.GetBinding(ctx, libraryID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !found || !binding.HasCategories() {
		return []*entity.KnowledgeSegment{}, nil
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits, err := s.store.SearchVectors(ctx, queryVector, binding.CategoryIDs, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	seen := make(map[string]struct{}, len(hits))
	segmentIDs := make([]string, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.SegmentID]; ok {
			continue
		}
		seen[hit.SegmentID] = struct{}{}
		segmentIDs = append(segmentIDs, hit.SegmentID)
	}
	if len(segmentIDs) == 0 {
		return []*entity.KnowledgeSegment{}, nil
	}

	return s.store.SearchSegmentsByIDs(ctx, segmentIDs, limit)
}

// Retrieve Dify 外部知识库检索：向量召回、阈值过滤、按条目去重，
// 严格返回不超过 top_k 条记录
func (s *Service) Retrieve(ctx context.Context, in *RetrieveInput) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Retrieve",
		trace.WithAttributes(
			attribute.String("library_id", in.KnowledgeID),
			attribute.Int("top_k", in.TopK),
			attribute.Float64("score_threshold", in.ScoreThreshold),
		))
	defer span.End()

	exists, err := s.store.LibraryExists(ctx, in.KnowledgeID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrKnowledgeNotFound
	}

	binding, found, err := s.store.GetBinding(ctx, in.KnowledgeID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !found || !binding.HasCategories() {
		return []Record{}, nil
	}

	queryVector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 超额召回一倍，补偿阈值过滤和同条目去重造成的损耗
	hits, err := s.store.SearchVectors(ctx, queryVector, binding.CategoryIDs, in.TopK*2)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	records := make([]Record, 0, in.TopK)
	seen := make(map[string]struct{}, len(hits))

	for _, hit := range hits {
		if len(records) >= in.TopK {
			break
		}

		// 还原 script_score 的 +1.0 偏移，得到 0-1 区间的余弦相似度
		score := hit.Score - 1.0

		if score < in.ScoreThreshold {
			metrics.RetrievalCandidatesDropped.WithLabelValues("below_threshold").Inc()
			continue
		}
		if _, ok := seen[hit.SegmentID]; ok {
			metrics.RetrievalCandidatesDropped.WithLabelValues("duplicate").Inc()
			continue
		}

		seg, segFound, err := s.store.GetSegment(ctx, hit.SegmentID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !segFound {
			// 向量与知识文档之间可能短暂不一致，跳过孤儿向量
			metrics.RetrievalCandidatesDropped.WithLabelValues("missing_segment").Inc()
			continue
		}

		if in.MetadataCondition != nil && !evaluateMetadataConditions(ctx, seg, in.MetadataCondition) {
			metrics.RetrievalCandidatesDropped.WithLabelValues("metadata_filtered").Inc()
			continue
		}

		seen[hit.SegmentID] = struct{}{}
		records = append(records, Record{
			Content:  buildRecordContent(seg),
			Score:    roundScore(score),
			Title:    seg.Title(),
			Metadata: seg.MetadataMap(),
		})
	}

	metrics.RetrievalRecordsReturned.WithLabelValues(in.KnowledgeID).Observe(float64(len(records)))
	span.SetAttributes(attribute.Int("record_count", len(records)))

	logger.Info(ctx, "knowledge retrieval completed",
		"library_id", in.KnowledgeID,
		"record_count", len(records),
	)
	return records, nil
}

// buildRecordContent 构造检索记录的内容：无问题时直接返回首答案，
// 否则拼接问答对
func buildRecordContent(seg *entity.KnowledgeSegment) string {
	answer := seg.FirstAnswerContent()
	if strings.TrimSpace(seg.Question) == "" {
		return answer
	}
	return fmt.Sprintf("Question: %s\n\nAnswer: %s", seg.Question, answer)
}

// roundScore 将分数收敛到 [0, 1] 并保留两位小数
func roundScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*100) / 100
}
