// Package dto 定义 HTTP 层的请求与响应结构
package dto

import (
	"kb-ext-api/internal/domain/entity"
)

// AnswerDTO 答案及其投放渠道
type AnswerDTO struct {
	Content  string   `json:"content" binding:"required,min=1"`
	Channels []string `json:"channels" binding:"required,min=1,dive,min=1"`
}

// KnowledgeUpdateRequest 知识条目新增/整条替换请求
type KnowledgeUpdateRequest struct {
	SegmentID        string      `json:"segment_id" binding:"required,min=1"`
	Source           string      `json:"source" binding:"required,oneof=personal system"`
	KnowledgeType    string      `json:"knowledge_type" binding:"required,oneof=segment faq"`
	Question         string      `json:"question"`
	SimilarQuestions []string    `json:"similar_questions" binding:"omitempty,dive,min=1"`
	Answers          []AnswerDTO `json:"answers" binding:"required,min=1,dive"`
	Weight           int         `json:"weight" binding:"min=0"`
	DocumentID       string      `json:"document_id"`
	Keywords         []string    `json:"keywords" binding:"omitempty,dive,min=1"`
	CategoryID       string      `json:"category_id"`
}

// ToEntity 转换为领域实体
func (r *KnowledgeUpdateRequest) ToEntity() *entity.KnowledgeSegment {
	answers := make([]entity.Answer, 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, entity.Answer{Content: a.Content, Channels: a.Channels})
	}
	return &entity.KnowledgeSegment{
		SegmentID:        r.SegmentID,
		Source:           entity.KnowledgeSource(r.Source),
		KnowledgeType:    entity.KnowledgeType(r.KnowledgeType),
		Question:         r.Question,
		SimilarQuestions: r.SimilarQuestions,
		Answers:          answers,
		Weight:           r.Weight,
		DocumentID:       r.DocumentID,
		Keywords:         r.Keywords,
		CategoryID:       r.CategoryID,
	}
}

// KnowledgeDeleteRequest 知识条目删除请求
type KnowledgeDeleteRequest struct {
	SegmentIDs []string `json:"segment_ids" binding:"required,min=1,dive,min=1"`
}

// BindBatchRequest 库绑定请求
type BindBatchRequest struct {
	LibraryID   string   `json:"library_id" binding:"required,min=1"`
	CategoryIDs []string `json:"category_ids" binding:"required,min=1,dive,min=1"`
}

// UnbindBatchRequest 库解绑请求，delete_type=part 时 category_ids 不能为空
type UnbindBatchRequest struct {
	LibraryID   string   `json:"library_id" binding:"required,min=1"`
	CategoryIDs []string `json:"category_ids" binding:"omitempty,dive,min=1"`
	DeleteType  string   `json:"delete_type" binding:"required,oneof=all part"`
}

// SearchRequest 库内知识搜索请求
type SearchRequest struct {
	Query     string `json:"query" binding:"required,min=1"`
	LibraryID string `json:"library_id" binding:"required,min=1"`
	Limit     int    `json:"limit" binding:"omitempty,gt=0,lte=100"`
}

// BaseResponse 通用响应包装
type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// OK 成功响应
func OK(data any) BaseResponse {
	return BaseResponse{Code: 200, Msg: "success", Data: data}
}

// SearchResponseData 搜索响应数据
type SearchResponseData struct {
	Segments []SegmentDTO `json:"segments"`
}

// SegmentDTO 对外返回的知识条目
type SegmentDTO struct {
	SegmentID        string      `json:"segment_id"`
	Source           string      `json:"source"`
	KnowledgeType    string      `json:"knowledge_type"`
	Question         string      `json:"question,omitempty"`
	SimilarQuestions []string    `json:"similar_questions,omitempty"`
	Answers          []AnswerDTO `json:"answers"`
	Weight           int         `json:"weight"`
	DocumentID       string      `json:"document_id,omitempty"`
	Keywords         []string    `json:"keywords,omitempty"`
	CategoryID       string      `json:"category_id,omitempty"`
}

// FromEntity 由领域实体构建 DTO
func FromEntity(seg *entity.KnowledgeSegment) SegmentDTO {
	answers := make([]AnswerDTO, 0, len(seg.Answers))
	for _, a := range seg.Answers {
		answers = append(answers, AnswerDTO{Content: a.Content, Channels: a.Channels})
	}
	return SegmentDTO{
		SegmentID:        seg.SegmentID,
		Source:           string(seg.Source),
		KnowledgeType:    string(seg.KnowledgeType),
		Question:         seg.Question,
		SimilarQuestions: seg.SimilarQuestions,
		Answers:          answers,
		Weight:           seg.Weight,
		DocumentID:       seg.DocumentID,
		Keywords:         seg.Keywords,
		CategoryID:       seg.CategoryID,
	}
}

// ErrorResponse Dify 风格错误响应
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}
