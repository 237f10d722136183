package dto

import (
	"strings"

	"kb-ext-api/internal/application/knowledge"
)

// RetrievalSetting Dify 检索参数
type RetrievalSetting struct {
	TopK           int      `json:"top_k" binding:"required,gt=0,lte=100"`
	ScoreThreshold *float64 `json:"score_threshold" binding:"required,gte=0,lte=1"`
}

// MetadataConditionDTO 单个元数据过滤条件
type MetadataConditionDTO struct {
	Name               []string `json:"name" binding:"required,min=1"`
	ComparisonOperator string   `json:"comparison_operator" binding:"required"`
	Value              string   `json:"value"`
}

// MetadataConditionsDTO 元数据过滤条件组
type MetadataConditionsDTO struct {
	LogicalOperator string                 `json:"logical_operator"`
	Conditions      []MetadataConditionDTO `json:"conditions" binding:"required,min=1,dive"`
}

// RetrievalRequest Dify External Knowledge API 检索请求
type RetrievalRequest struct {
	KnowledgeID       string                 `json:"knowledge_id" binding:"required,min=1"`
	Query             string                 `json:"query" binding:"required,min=1"`
	RetrievalSetting  RetrievalSetting       `json:"retrieval_setting" binding:"required"`
	MetadataCondition *MetadataConditionsDTO `json:"metadata_condition"`
}

// ToInput 转换为应用层检索输入
func (r *RetrievalRequest) ToInput() *knowledge.RetrieveInput {
	// Dify 侧的知识库 id 以连字符分隔
	in := &knowledge.RetrieveInput{
		KnowledgeID:    strings.ReplaceAll(r.KnowledgeID, "_", "-"),
		Query:          r.Query,
		TopK:           r.RetrievalSetting.TopK,
		ScoreThreshold: *r.RetrievalSetting.ScoreThreshold,
	}
	if r.MetadataCondition != nil {
		conds := make([]knowledge.MetadataCondition, 0, len(r.MetadataCondition.Conditions))
		for _, c := range r.MetadataCondition.Conditions {
			conds = append(conds, knowledge.MetadataCondition{
				Name:               c.Name,
				ComparisonOperator: c.ComparisonOperator,
				Value:              c.Value,
			})
		}
		in.MetadataCondition = &knowledge.MetadataConditions{
			LogicalOperator: r.MetadataCondition.LogicalOperator,
			Conditions:      conds,
		}
	}
	return in
}

// RetrievalResponse Dify 检索响应
type RetrievalResponse struct {
	Records []knowledge.Record `json:"records"`
}
