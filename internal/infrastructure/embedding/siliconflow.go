package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kb-ext-api/internal/config"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/metrics"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var sfTracer = otel.Tracer("infrastructure/embedding")

// SiliconFlowClient 基于 Eino 的 OpenAI 兼容适配器访问 SiliconFlow 向量化服务，
// 重排序走原生 HTTP 接口
type SiliconFlowClient struct {
	embedder    einoembedding.Embedder
	baseURL     string
	apiKey      string
	rerankModel string
	httpClient  *http.Client
}

// NewSiliconFlowClient 创建 SiliconFlow 客户端
func NewSiliconFlowClient(ctx context.Context, cfg *config.EmbeddingConfig) (*SiliconFlowClient, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.CodeAdapterError, "embedding endpoint is required")
	}

	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to create siliconflow embedder")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SiliconFlowClient{
		embedder:    embedder,
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		rerankModel: cfg.RerankModel,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Embed 单条文本向量化
func (c *SiliconFlowClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperrors.New(apperrors.CodeAdapterError, "embedding backend returned no vectors")
	}
	return vectors[0], nil
}

// EmbedBatch 批量向量化，结果按输入顺序返回
func (c *SiliconFlowClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := sfTracer.Start(ctx, "embedding.siliconflow.embed")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.batch_size", len(texts)))

	start := time.Now()
	raw, err := c.embedder.EmbedStrings(ctx, texts)
	c.observe(start, err)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "embedding request failed")
	}
	if len(raw) != len(texts) {
		return nil, apperrors.New(apperrors.CodeAdapterError,
			fmt.Sprintf("embedding backend returned %d vectors for %d inputs", len(raw), len(texts)))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, apperrors.New(apperrors.CodeAdapterError,
				fmt.Sprintf("embedding backend returned empty vector at index %d", i))
		}
		vec := make([]float32, len(v))
		for j, f := range v {
			vec[j] = float32(f)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

type sfRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type sfRerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank 按查询相关性对文档重排序
func (c *SiliconFlowClient) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	ctx, span := sfTracer.Start(ctx, "embedding.siliconflow.rerank")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.document_count", len(documents)))

	payload, err := json.Marshal(&sfRerankRequest{
		Model:     c.rerankModel,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to marshal rerank request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to create rerank request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(start, err)
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "rerank request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		err = apperrors.New(apperrors.CodeAdapterError,
			fmt.Sprintf("rerank backend returned status %d: %s", httpResp.StatusCode, string(body)))
		c.observe(start, err)
		span.RecordError(err)
		return nil, err
	}

	var resp sfRerankResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		c.observe(start, err)
		return nil, apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to decode rerank response")
	}
	c.observe(start, nil)
	return resp.Results, nil
}

func (c *SiliconFlowClient) observe(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.EmbeddingCallTotal.WithLabelValues("siliconflow", status).Inc()
	metrics.EmbeddingCallDuration.WithLabelValues("siliconflow").Observe(time.Since(start).Seconds())
}
