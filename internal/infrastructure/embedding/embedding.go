// Package embedding 提供向量化与重排序服务客户端
package embedding

import "context"

// Embedder 文本向量化接口
type Embedder interface {
	// Embed 将单条文本转为向量，维度由后端模型决定
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 批量向量化，结果顺序与输入一致
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankResult 重排序结果，Index 对应输入文档下标
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Reranker 文档重排序接口
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}
