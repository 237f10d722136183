// Package elasticsearch 提供 Elasticsearch 访问层实现
package elasticsearch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel"

	"kb-ext-api/internal/config"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

var tracer = otel.Tracer("elasticsearch")

// Client Elasticsearch 客户端，封装索引名前缀与索引初始化
type Client struct {
	es         *elasticsearch.Client
	config     *config.ElasticsearchConfig
	vectorDim  int
	ensureOnce sync.Once
	ensureErr  error
}

// NewClient 创建 Elasticsearch 客户端，vectorDim 为向量索引的维度
func NewClient(cfg *config.ElasticsearchConfig, vectorDim int) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Client{
		es:        es,
		config:    cfg,
		vectorDim: vectorDim,
	}, nil
}

// ES 获取底层 Elasticsearch 客户端
func (c *Client) ES() *elasticsearch.Client {
	return c.es
}

// VectorIndex 向量索引名
func (c *Client) VectorIndex() string {
	return c.indexName("vector_index")
}

// KnowledgeIndex 知识条目索引名
func (c *Client) KnowledgeIndex() string {
	return c.indexName("knowledge_index")
}

// BindingIndex 库绑定索引名
func (c *Client) BindingIndex() string {
	return c.indexName("binding_index")
}

func (c *Client) indexName(suffix string) string {
	if c.config.IndexPrefix != "" {
		return c.config.IndexPrefix + "_" + suffix
	}
	return suffix
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "elasticsearch.HealthCheck")
	defer span.End()

	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check failed: status=%d", res.StatusCode)
	}
	return nil
}

// EnsureIndices 确保三个索引存在，进程内只执行一次。
// 索引已存在时保持原样，不做 mapping 迁移。
func (c *Client) EnsureIndices(ctx context.Context) error {
	c.ensureOnce.Do(func() {
		c.ensureErr = c.createIndices(ctx)
	})
	return c.ensureErr
}

func (c *Client) createIndices(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "elasticsearch.EnsureIndices")
	defer span.End()

	indices := map[string]string{
		c.VectorIndex():    vectorIndexMapping(c.vectorDim),
		c.KnowledgeIndex(): knowledgeIndexMapping,
		c.BindingIndex():   bindingIndexMapping,
	}

	for name, mapping := range indices {
		exists, err := c.indexExists(ctx, name)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if exists {
			continue
		}

		res, err := c.es.Indices.Create(name,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
		if err := closeResponse(res, "create index "+name); err != nil {
			// 并发启动时其他实例可能已建好索引
			if res.StatusCode == 400 {
				logger.Warn(ctx, "index already created concurrently", "index", name)
				continue
			}
			span.RecordError(err)
			return err
		}
		logger.Info(ctx, "elasticsearch index created", "index", name)
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check index %s: status=%d", name, res.StatusCode)
	}
}

// closeResponse 消费并关闭响应体，错误状态转为 error
func closeResponse(res *esapi.Response, operation string) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return apperrors.New(apperrors.CodeBackendError,
			fmt.Sprintf("%s failed: status=%d body=%s", operation, res.StatusCode, string(body)))
	}
	io.Copy(io.Discard, res.Body)
	return nil
}
