package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"kb-ext-api/internal/domain/entity"
)

func metadataTestSegment() *entity.KnowledgeSegment {
	return &entity.KnowledgeSegment{
		SegmentID:     "seg-1",
		Source:        entity.SourcePersonal,
		KnowledgeType: entity.KnowledgeTypeFAQ,
		Question:      "如何缴纳社保？",
		Answers:       []entity.Answer{{Content: "拨打12366。", Channels: []string{"web"}}},
		Weight:        5,
		DocumentID:    "doc-7",
		CategoryID:    "cat-1",
	}
}

func TestMatchOperator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		operator string
		value    string
		present  bool
		target   string
		want     bool
	}{
		{"contains hit", "contains", "doc-7", true, "doc", true},
		{"contains miss", "contains", "doc-7", true, "xyz", false},
		{"contains absent field", "contains", "", false, "doc", false},
		{"not contains", "not contains", "doc-7", true, "xyz", true},
		{"not contains on absent field", "not contains", "", false, "xyz", true},
		{"start with", "start with", "doc-7", true, "doc", true},
		{"end with", "end with", "doc-7", true, "-7", true},
		{"is", "is", "cat-1", true, "cat-1", true},
		{"is not", "is not", "cat-1", true, "cat-2", true},
		{"empty on absent", "empty", "", false, "", true},
		{"empty on present", "empty", "x", true, "", false},
		{"not empty", "not empty", "x", true, "", true},
		{"unknown operator", "between", "x", true, "y", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchOperator(ctx, tt.operator, tt.value, tt.present, tt.target)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateMetadataConditionsAnd(t *testing.T) {
	seg := metadataTestSegment()

	conds := &MetadataConditions{
		LogicalOperator: "and",
		Conditions: []MetadataCondition{
			{Name: []string{"category_id"}, ComparisonOperator: "is", Value: "cat-1"},
			{Name: []string{"document_id"}, ComparisonOperator: "start with", Value: "doc"},
		},
	}
	assert.True(t, evaluateMetadataConditions(context.Background(), seg, conds))

	conds.Conditions[1].Value = "other"
	assert.False(t, evaluateMetadataConditions(context.Background(), seg, conds))
}

func TestEvaluateMetadataConditionsOr(t *testing.T) {
	seg := metadataTestSegment()

	conds := &MetadataConditions{
		LogicalOperator: "or",
		Conditions: []MetadataCondition{
			{Name: []string{"category_id"}, ComparisonOperator: "is", Value: "wrong"},
			{Name: []string{"document_id"}, ComparisonOperator: "is", Value: "doc-7"},
		},
	}
	assert.True(t, evaluateMetadataConditions(context.Background(), seg, conds))

	conds.Conditions[1].Value = "also wrong"
	assert.False(t, evaluateMetadataConditions(context.Background(), seg, conds))
}

func TestEvaluateConditionMultipleNames(t *testing.T) {
	seg := metadataTestSegment()
	meta := seg.MetadataMap()

	// 任一命名字段命中即通过
	cond := &MetadataCondition{
		Name:               []string{"question", "document_id"},
		ComparisonOperator: "contains",
		Value:              "doc",
	}
	assert.True(t, evaluateCondition(context.Background(), meta, cond))
}

func TestEvaluateMetadataConditionsNil(t *testing.T) {
	seg := metadataTestSegment()
	assert.True(t, evaluateMetadataConditions(context.Background(), seg, nil))
	assert.True(t, evaluateMetadataConditions(context.Background(), seg, &MetadataConditions{}))
}
