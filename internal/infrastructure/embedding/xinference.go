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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var xinfTracer = otel.Tracer("infrastructure/embedding")

// XinferenceClient 基于 Xinference 的 OpenAI 兼容接口实现向量化与重排序
type XinferenceClient struct {
	baseURL     string
	apiKey      string
	model       string
	rerankModel string
	httpClient  *http.Client
}

// NewXinferenceClient 创建 Xinference 客户端
func NewXinferenceClient(cfg *config.EmbeddingConfig) *XinferenceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &XinferenceClient{
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		rerankModel: cfg.RerankModel,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type xinfEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type xinfEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type xinfRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type xinfRerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Embed 单条文本向量化
func (c *XinferenceClient) Embed(ctx context.Context, text string) ([]float32, error) {
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
func (c *XinferenceClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := xinfTracer.Start(ctx, "embedding.xinference.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", c.model),
		attribute.Int("embedding.batch_size", len(texts)),
	)

	start := time.Now()
	var resp xinfEmbedResponse
	err := c.postJSON(ctx, "/v1/embeddings", &xinfEmbedRequest{Model: c.model, Input: texts}, &resp)
	c.observe(start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, apperrors.New(apperrors.CodeAdapterError,
			fmt.Sprintf("embedding backend returned %d vectors for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, apperrors.New(apperrors.CodeAdapterError, "embedding backend returned out-of-range index")
		}
		if len(item.Embedding) == 0 {
			return nil, apperrors.New(apperrors.CodeAdapterError,
				fmt.Sprintf("embedding backend returned empty vector at index %d", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Rerank 按查询相关性对文档重排序
func (c *XinferenceClient) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	ctx, span := xinfTracer.Start(ctx, "embedding.xinference.rerank")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.rerank_model", c.rerankModel),
		attribute.Int("embedding.document_count", len(documents)),
	)

	start := time.Now()
	var resp xinfRerankResponse
	err := c.postJSON(ctx, "/v1/rerank", &xinfRerankRequest{
		Model:     c.rerankModel,
		Query:     query,
		Documents: documents,
	}, &resp)
	c.observe(start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp.Results, nil
}

func (c *XinferenceClient) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	if c.baseURL == "" {
		return apperrors.New(apperrors.CodeAdapterError, "embedding endpoint is empty")
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to marshal embedding request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to create embedding request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeAdapterError, "embedding request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return apperrors.New(apperrors.CodeAdapterError,
			fmt.Sprintf("embedding backend returned status %d: %s", httpResp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(respBody); err != nil {
		return apperrors.Wrap(err, apperrors.CodeAdapterError, "failed to decode embedding response")
	}
	return nil
}

func (c *XinferenceClient) observe(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.EmbeddingCallTotal.WithLabelValues("xinference", status).Inc()
	metrics.EmbeddingCallDuration.WithLabelValues("xinference").Observe(time.Since(start).Seconds())
}
