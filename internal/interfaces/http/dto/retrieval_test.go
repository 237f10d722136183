package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievalRequestToInput(t *testing.T) {
	threshold := 0.5
	req := &RetrievalRequest{
		KnowledgeID: "kb_social_insurance",
		Query:       "如何缴费",
		RetrievalSetting: RetrievalSetting{
			TopK:           5,
			ScoreThreshold: &threshold,
		},
		MetadataCondition: &MetadataConditionsDTO{
			LogicalOperator: "or",
			Conditions: []MetadataConditionDTO{
				{Name: []string{"category_id"}, ComparisonOperator: "is", Value: "cat-1"},
			},
		},
	}

	in := req.ToInput()
	assert.Equal(t, "kb-social-insurance", in.KnowledgeID)
	assert.Equal(t, "如何缴费", in.Query)
	assert.Equal(t, 5, in.TopK)
	assert.Equal(t, 0.5, in.ScoreThreshold)
	require.NotNil(t, in.MetadataCondition)
	assert.Equal(t, "or", in.MetadataCondition.LogicalOperator)
	require.Len(t, in.MetadataCondition.Conditions, 1)
	assert.Equal(t, []string{"category_id"}, in.MetadataCondition.Conditions[0].Name)
}

func TestRetrievalRequestToInputWithoutConditions(t *testing.T) {
	threshold := 0.0
	req := &RetrievalRequest{
		KnowledgeID:      "kb-1",
		Query:            "q",
		RetrievalSetting: RetrievalSetting{TopK: 1, ScoreThreshold: &threshold},
	}
	in := req.ToInput()
	assert.Nil(t, in.MetadataCondition)
	assert.Zero(t, in.ScoreThreshold)
}
