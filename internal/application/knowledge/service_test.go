package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/domain/entity"
	apperrors "kb-ext-api/pkg/errors"
)

// fakeStore 内存实现，记录每次写入便于断言
type fakeStore struct {
	segments map[string]*entity.KnowledgeSegment
	bindings map[string]*entity.LibraryBinding
	hits     []VectorHit

	upsertedVectors []entity.VectorRecord
	deletedIDs      []string
	searchSize      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		segments: make(map[string]*entity.KnowledgeSegment),
		bindings: make(map[string]*entity.LibraryBinding),
	}
}

func (f *fakeStore) UpsertSegment(_ context.Context, seg *entity.KnowledgeSegment, vectors []entity.VectorRecord) error {
	f.segments[seg.SegmentID] = seg
	f.upsertedVectors = vectors
	return nil
}

func (f *fakeStore) DeleteSegments(_ context.Context, segmentIDs []string) error {
	f.deletedIDs = segmentIDs
	for _, id := range segmentIDs {
		delete(f.segments, id)
	}
	return nil
}

func (f *fakeStore) GetSegment(_ context.Context, segmentID string) (*entity.KnowledgeSegment, bool, error) {
	seg, ok := f.segments[segmentID]
	return seg, ok, nil
}

func (f *fakeStore) BindLibrary(_ context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error) {
	existing := f.bindings[libraryID]
	merged := categoryIDs
	if existing != nil {
		seen := make(map[string]bool)
		merged = nil
		for _, id := range append(existing.CategoryIDs, categoryIDs...) {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
	}
	f.bindings[libraryID] = &entity.LibraryBinding{LibraryID: libraryID, CategoryIDs: merged}
	return &entity.BindResult{SuccessCount: 1, FailedIDs: []string{}}, nil
}

func (f *fakeStore) UnbindLibrary(_ context.Context, libraryID string) (int, error) {
	binding, ok := f.bindings[libraryID]
	if !ok {
		return 0, nil
	}
	delete(f.bindings, libraryID)
	return len(binding.CategoryIDs), nil
}

func (f *fakeStore) SetBinding(_ context.Context, libraryID string, categoryIDs []string) error {
	f.bindings[libraryID] = &entity.LibraryBinding{LibraryID: libraryID, CategoryIDs: categoryIDs}
	return nil
}

func (f *fakeStore) GetBinding(_ context.Context, libraryID string) (*entity.LibraryBinding, bool, error) {
	binding, ok := f.bindings[libraryID]
	return binding, ok, nil
}

func (f *fakeStore) LibraryExists(_ context.Context, libraryID string) (bool, error) {
	_, ok := f.bindings[libraryID]
	return ok, nil
}

func (f *fakeStore) SearchVectors(_ context.Context, _ []float32, _ []string, size int) ([]VectorHit, error) {
	f.searchSize = size
	if len(f.hits) > size {
		return f.hits[:size], nil
	}
	return f.hits, nil
}

func (f *fakeStore) SearchSegmentsByIDs(_ context.Context, segmentIDs []string, _ int) ([]*entity.KnowledgeSegment, error) {
	var out []*entity.KnowledgeSegment
	for _, id := range segmentIDs {
		if seg, ok := f.segments[id]; ok {
			out = append(out, seg)
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

func faqSegment(id, question, answer, categoryID string) *entity.KnowledgeSegment {
	return &entity.KnowledgeSegment{
		SegmentID:     id,
		Source:        entity.SourcePersonal,
		KnowledgeType: entity.KnowledgeTypeFAQ,
		Question:      question,
		Answers:       []entity.Answer{{Content: answer, Channels: []string{"web"}}},
		Weight:        1,
		CategoryID:    categoryID,
	}
}

func TestUpsertDerivesVectors(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	svc := NewService(store, embedder)

	seg := faqSegment("seg-1", "如何缴纳社保？", "拨打12366咨询。", "cat-1")
	seg.SimilarQuestions = []string{"社保怎么交", "社保缴纳方式"}

	err := svc.Upsert(context.Background(), seg)
	require.NoError(t, err)

	// 主问题 + 两个相似问题 + 首答案
	require.Len(t, store.upsertedVectors, 4)

	types := map[entity.VectorType]int{}
	for _, v := range store.upsertedVectors {
		types[v.VectorType]++
		assert.Equal(t, "seg-1", v.SegmentID)
		assert.Equal(t, "cat-1", v.CategoryID)
	}
	assert.Equal(t, 1, types[entity.VectorTypeQuestion])
	assert.Equal(t, 2, types[entity.VectorTypeSimilarQuestion])
	assert.Equal(t, 1, types[entity.VectorTypeAnswer])

	// 相似问题复用主问题向量，不额外调用 embedding
	assert.Equal(t, []string{"如何缴纳社保？", "拨打12366咨询。"}, embedder.calls)
}

func TestUpsertRejectsInvalidSegments(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeEmbedder{})

	tests := []struct {
		name string
		seg  *entity.KnowledgeSegment
	}{
		{"missing segment id", faqSegment("", "q", "a", "")},
		{"faq without question", faqSegment("seg-1", "", "a", "")},
		{
			"no answers",
			&entity.KnowledgeSegment{
				SegmentID:     "seg-1",
				Source:        entity.SourcePersonal,
				KnowledgeType: entity.KnowledgeTypeSegment,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Upsert(context.Background(), tt.seg)
			require.Error(t, err)
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, apperrors.CodeInvalidParam, appErr.Code)
		})
	}
}

func TestDeleteRequiresIDs(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeEmbedder{})

	err := svc.Delete(context.Background(), nil)
	require.Error(t, err)

	err = svc.Delete(context.Background(), []string{"seg-1", "seg-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"seg-1", "seg-2"}, store.deletedIDs)
}

func TestRetrieveUnknownLibrary(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeEmbedder{})

	_, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "missing",
		Query:          "q",
		TopK:           5,
		ScoreThreshold: 0.5,
	})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeKnowledgeNotFound, appErr.Code)
}

func TestRetrieveEmptyBinding(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{}}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           5,
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRetrieveThresholdIsInclusive(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}
	store.segments["seg-1"] = faqSegment("seg-1", "q1", "a1", "cat-1")
	store.segments["seg-2"] = faqSegment("seg-2", "q2", "a2", "cat-1")
	// ES 命中分数含 +1.0 偏移
	store.hits = []VectorHit{
		{SegmentID: "seg-1", Score: 1.50}, // 还原后 0.50，恰好等于阈值
		{SegmentID: "seg-2", Score: 1.49}, // 还原后 0.49，低于阈值
	}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           10,
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.5, records[0].Score)
	assert.Equal(t, "q1", records[0].Title)
}

func TestRetrieveDeduplicatesBySegment(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}
	store.segments["seg-1"] = faqSegment("seg-1", "q1", "a1", "cat-1")
	// 同一条目的问题向量与答案向量都进了召回
	store.hits = []VectorHit{
		{SegmentID: "seg-1", Score: 1.9},
		{SegmentID: "seg-1", Score: 1.8},
	}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           10,
		ScoreThreshold: 0,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.9, records[0].Score)
}

func TestRetrieveStopsAtTopK(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("seg-%d", i)
		store.segments[id] = faqSegment(id, "q", "a", "cat-1")
		store.hits = append(store.hits, VectorHit{SegmentID: id, Score: 1.9})
	}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           3,
		ScoreThreshold: 0,
	})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	// 超额召回 top_k*2 个候选
	assert.Equal(t, 6, store.searchSize)
}

func TestRetrieveSkipsOrphanVectors(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}
	store.segments["seg-2"] = faqSegment("seg-2", "q2", "a2", "cat-1")
	store.hits = []VectorHit{
		{SegmentID: "seg-1", Score: 1.9}, // 知识文档已删，向量残留
		{SegmentID: "seg-2", Score: 1.8},
	}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           10,
		ScoreThreshold: 0,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "q2", records[0].Title)
}

func TestRetrieveContentFormat(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}

	withQuestion := faqSegment("seg-1", "如何缴费？", "拨打热线。", "cat-1")
	noQuestion := &entity.KnowledgeSegment{
		SegmentID:     "seg-2",
		Source:        entity.SourceSystem,
		KnowledgeType: entity.KnowledgeTypeSegment,
		Answers:       []entity.Answer{{Content: "纯文本片段内容", Channels: []string{"web"}}},
		DocumentID:    "doc-9",
		CategoryID:    "cat-1",
	}
	store.segments["seg-1"] = withQuestion
	store.segments["seg-2"] = noQuestion
	store.hits = []VectorHit{
		{SegmentID: "seg-1", Score: 1.9},
		{SegmentID: "seg-2", Score: 1.8},
	}
	svc := NewService(store, &fakeEmbedder{})

	records, err := svc.Retrieve(context.Background(), &RetrieveInput{
		KnowledgeID:    "lib-1",
		Query:          "q",
		TopK:           10,
		ScoreThreshold: 0,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Question: 如何缴费？\n\nAnswer: 拨打热线。", records[0].Content)
	assert.Equal(t, "如何缴费？", records[0].Title)

	assert.Equal(t, "纯文本片段内容", records[1].Content)
	// 无问题时标题回退到 document_id
	assert.Equal(t, "doc-9", records[1].Title)
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.0, roundScore(-0.2))
	assert.Equal(t, 1.0, roundScore(1.3))
	assert.Equal(t, 0.87, roundScore(0.8671))
	assert.Equal(t, 0.5, roundScore(0.5))
}

func TestUnbindAll(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{
		LibraryID:   "lib-1",
		CategoryIDs: []string{"cat-1", "cat-2", "cat-3"},
	}
	svc := NewService(store, &fakeEmbedder{})

	result, err := svc.Unbind(context.Background(), "lib-1", nil, "all")
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Empty(t, result.FailedIDs)

	_, found := store.bindings["lib-1"]
	assert.False(t, found)
}

func TestUnbindPart(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{
		LibraryID:   "lib-1",
		CategoryIDs: []string{"cat-1", "cat-2", "cat-3"},
	}
	svc := NewService(store, &fakeEmbedder{})

	result, err := svc.Unbind(context.Background(), "lib-1", []string{"cat-2", "cat-9"}, "part")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, []string{"cat-9"}, result.FailedIDs)

	binding := store.bindings["lib-1"]
	require.NotNil(t, binding)
	assert.Equal(t, []string{"cat-1", "cat-3"}, binding.CategoryIDs)
}

func TestUnbindPartUnknownLibrary(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeEmbedder{})

	result, err := svc.Unbind(context.Background(), "missing", []string{"cat-1"}, "part")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, []string{"cat-1"}, result.FailedIDs)
}

func TestSearchUnboundLibraryReturnsEmpty(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeEmbedder{})

	segments, err := svc.Search(context.Background(), "q", "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSearchDeduplicatesHits(t *testing.T) {
	store := newFakeStore()
	store.bindings["lib-1"] = &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}}
	store.segments["seg-1"] = faqSegment("seg-1", "q1", "a1", "cat-1")
	store.hits = []VectorHit{
		{SegmentID: "seg-1", Score: 1.9},
		{SegmentID: "seg-1", Score: 1.7},
	}
	svc := NewService(store, &fakeEmbedder{})

	segments, err := svc.Search(context.Background(), "q", "lib-1", 10)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "seg-1", segments[0].SegmentID)
}
