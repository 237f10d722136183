// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"strings"
)

// KnowledgeSource 知识来源类型
type KnowledgeSource string

const (
	SourcePersonal KnowledgeSource = "personal"
	SourceSystem   KnowledgeSource = "system"
)

// KnowledgeType 知识类型
type KnowledgeType string

const (
	KnowledgeTypeSegment KnowledgeType = "segment"
	KnowledgeTypeFAQ     KnowledgeType = "faq"
)

// Answer 答案及其投放渠道
type Answer struct {
	Content  string   `json:"content"`
	Channels []string `json:"channels"`
}

// KnowledgeSegment 知识条目，segment_id 为外部指定的唯一键。
// 索引操作为整条替换语义，不存在部分字段更新。
type KnowledgeSegment struct {
	SegmentID        string          `json:"segment_id"`
	Source           KnowledgeSource `json:"source"`
	KnowledgeType    KnowledgeType   `json:"knowledge_type"`
	Question         string          `json:"question,omitempty"`
	SimilarQuestions []string        `json:"similar_questions,omitempty"`
	Answers          []Answer        `json:"answers"`
	Weight           int             `json:"weight"`
	DocumentID       string          `json:"document_id,omitempty"`
	Keywords         []string        `json:"keywords,omitempty"`
	CategoryID       string          `json:"category_id,omitempty"`
}

// FirstAnswerContent 返回首个答案的内容，当前仅首个答案参与向量化和检索输出
func (s *KnowledgeSegment) FirstAnswerContent() string {
	if len(s.Answers) == 0 {
		return ""
	}
	return s.Answers[0].Content
}

// Title 检索结果的标题：优先问题文本，其次来源文档，最后回退到 segment_id
func (s *KnowledgeSegment) Title() string {
	if q := strings.TrimSpace(s.Question); q != "" {
		return q
	}
	if s.DocumentID != "" {
		return s.DocumentID
	}
	return s.SegmentID
}

// MetadataMap 以键值映射形式返回全部字段，用于检索结果的 metadata
func (s *KnowledgeSegment) MetadataMap() map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"segment_id": s.SegmentID}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"segment_id": s.SegmentID}
	}
	return m
}

// VectorType 向量记录类型
type VectorType string

const (
	VectorTypeQuestion        VectorType = "question"
	VectorTypeSimilarQuestion VectorType = "similar_question"
	VectorTypeAnswer          VectorType = "answer"
)

// VectorRecord 派生的向量记录，仅用于相似度打分，不对外暴露。
// 每条记录必须回指一个存在的 KnowledgeSegment，由索引/删除操作维护级联。
type VectorRecord struct {
	SegmentID  string     `json:"segment_id"`
	VectorType VectorType `json:"vector_type"`
	Vector     []float32  `json:"vector"`
	Text       string     `json:"text"`
	CategoryID string     `json:"category_id,omitempty"`
}

// LibraryBinding 库与类别的绑定关系，library 持有类别集合。
// 检索可见范围 = 绑定集合内类别下的全部知识条目。
type LibraryBinding struct {
	LibraryID   string   `json:"library_id"`
	CategoryIDs []string `json:"category_id"`
}

// HasCategories 绑定是否含有至少一个类别
func (b *LibraryBinding) HasCategories() bool {
	return b != nil && len(b.CategoryIDs) > 0
}

// BindResult 批量绑定/解绑的执行结果
type BindResult struct {
	SuccessCount int      `json:"success_count"`
	FailedIDs    []string `json:"failed_ids,omitempty"`
}
