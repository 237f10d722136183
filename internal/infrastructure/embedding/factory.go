package embedding

import (
	"context"
	"fmt"

	"kb-ext-api/internal/config"
)

// Provider 同时提供向量化与重排序能力
type Provider interface {
	Embedder
	Reranker
}

// NewProvider 根据配置创建向量化后端，启动时调用一次
func NewProvider(ctx context.Context, cfg *config.EmbeddingConfig) (Provider, error) {
	switch cfg.Backend {
	case "xinference", "":
		return NewXinferenceClient(cfg), nil
	case "siliconflow":
		return NewSiliconFlowClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding backend: %s", cfg.Backend)
	}
}
