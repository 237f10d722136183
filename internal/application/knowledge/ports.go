// Package knowledge 实现知识条目管理与检索的应用逻辑
package knowledge

import (
	"context"

	"kb-ext-api/internal/domain/entity"
)

// VectorHit 向量检索命中结果，Score 为存储层原始分（cosine + 1.0）
type VectorHit struct {
	SegmentID  string
	VectorType entity.VectorType
	Text       string
	Score      float64
}

// Store 应用层对知识存储的最小依赖（port），由 Elasticsearch 仓储实现
type Store interface {
	UpsertSegment(ctx context.Context, seg *entity.KnowledgeSegment, vectors []entity.VectorRecord) error
	DeleteSegments(ctx context.Context, segmentIDs []string) error
	GetSegment(ctx context.Context, segmentID string) (*entity.KnowledgeSegment, bool, error)
	BindLibrary(ctx context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error)
	UnbindLibrary(ctx context.Context, libraryID string) (int, error)
	SetBinding(ctx context.Context, libraryID string, categoryIDs []string) error
	GetBinding(ctx context.Context, libraryID string) (*entity.LibraryBinding, bool, error)
	LibraryExists(ctx context.Context, libraryID string) (bool, error)
	SearchVectors(ctx context.Context, queryVector []float32, categoryIDs []string, size int) ([]VectorHit, error)
	SearchSegmentsByIDs(ctx context.Context, segmentIDs []string, size int) ([]*entity.KnowledgeSegment, error)
}

// Embedder 应用层对向量化服务的最小依赖（port）
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record Dify 检索结果记录
type Record struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataCondition 单个元数据过滤条件
type MetadataCondition struct {
	Name               []string `json:"name"`
	ComparisonOperator string   `json:"comparison_operator"`
	Value              string   `json:"value,omitempty"`
}

// MetadataConditions 元数据过滤条件组
type MetadataConditions struct {
	LogicalOperator string              `json:"logical_operator"`
	Conditions      []MetadataCondition `json:"conditions"`
}

// RetrieveInput 检索输入
type RetrieveInput struct {
	KnowledgeID       string
	Query             string
	TopK              int
	ScoreThreshold    float64
	MetadataCondition *MetadataConditions
}
