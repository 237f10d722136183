package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnowledgeSegmentTitle(t *testing.T) {
	seg := &KnowledgeSegment{SegmentID: "seg-1", Question: "  如何开发票？ ", DocumentID: "doc-1"}
	assert.Equal(t, "如何开发票？", seg.Title())

	seg.Question = "   "
	assert.Equal(t, "doc-1", seg.Title())

	seg.DocumentID = ""
	assert.Equal(t, "seg-1", seg.Title())
}

func TestKnowledgeSegmentFirstAnswerContent(t *testing.T) {
	seg := &KnowledgeSegment{SegmentID: "seg-1"}
	assert.Empty(t, seg.FirstAnswerContent())

	seg.Answers = []Answer{{Content: "第一条"}, {Content: "第二条"}}
	assert.Equal(t, "第一条", seg.FirstAnswerContent())
}

func TestKnowledgeSegmentMetadataMap(t *testing.T) {
	seg := &KnowledgeSegment{
		SegmentID:     "seg-1",
		Source:        SourceSystem,
		KnowledgeType: KnowledgeTypeSegment,
		Answers:       []Answer{{Content: "答案", Channels: []string{"app"}}},
		Weight:        3,
		CategoryID:    "cat-1",
	}
	meta := seg.MetadataMap()

	assert.Equal(t, "seg-1", meta["segment_id"])
	assert.Equal(t, "system", meta["source"])
	assert.Equal(t, "segment", meta["knowledge_type"])
	assert.Equal(t, "cat-1", meta["category_id"])
	// 数值字段经 JSON 往返后为 float64
	assert.Equal(t, float64(3), meta["weight"])
	// omitempty 的空字段不出现
	_, ok := meta["question"]
	assert.False(t, ok)
}
