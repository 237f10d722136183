// Package ragflow 提供 RAGFlow 文档解析服务客户端
package ragflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-ext-api/internal/config"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

var tracer = otel.Tracer("ragflow")

// Client RAGFlow HTTP 客户端
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	pollRetries  int
}

// NewClient 创建 RAGFlow 客户端
func NewClient(cfg *config.RAGFlowConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pollRetries := cfg.PollRetries
	if pollRetries <= 0 {
		pollRetries = 30
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
		pollRetries:  pollRetries,
	}
}

// ParserConfig 文档解析配置
type ParserConfig struct {
	ChunkTokenCount int    `json:"chunk_token_count,omitempty"`
	Delimiter       string `json:"delimiter,omitempty"`
	LayoutRecognize bool   `json:"layout_recognize"`
	HTML4Excel      bool   `json:"html4excel"`
}

// EnsureDataset 按名称查找数据集，不存在则创建，返回数据集 id
func (c *Client) EnsureDataset(ctx context.Context, name string) (string, error) {
	ctx, span := tracer.Start(ctx, "ragflow.EnsureDataset",
		trace.WithAttributes(attribute.String("dataset.name", name)))
	defer span.End()

	if id, err := c.findDataset(ctx, name); err != nil {
		span.RecordError(err)
		return "", err
	} else if id != "" {
		return id, nil
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/datasets", map[string]any{"name": name}, &resp); err != nil {
		span.RecordError(err)
		return "", err
	}
	if resp.Data.ID == "" {
		return "", apperrors.New(apperrors.CodeProcessorError, "dataset creation response did not contain id")
	}
	logger.Info(ctx, "ragflow dataset created", "dataset_id", resp.Data.ID, "name", name)
	return resp.Data.ID, nil
}

func (c *Client) findDataset(ctx context.Context, name string) (string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	path := "/api/v1/datasets?name=" + url.QueryEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) > 0 {
		return resp.Data[0].ID, nil
	}
	return "", nil
}

// UploadDocument 以 multipart 形式上传文档，返回文档 id
func (c *Client) UploadDocument(ctx context.Context, datasetID, fileName string, content []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "ragflow.UploadDocument",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("file.name", fileName),
			attribute.Int("file.size", len(content)),
		))
	defer span.End()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to build upload form")
	}
	if _, err := part.Write(content); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to write upload form")
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to finish upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/datasets/"+datasetID+"/documents", &body)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to create upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "document upload failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		err = apperrors.New(apperrors.CodeProcessorError,
			fmt.Sprintf("document upload failed: status=%d body=%s", httpResp.StatusCode, string(text)))
		span.RecordError(err)
		return "", err
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to decode upload response")
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", apperrors.New(apperrors.CodeProcessorError, "upload response did not contain document data")
	}
	return resp.Data[0].ID, nil
}

// UpdateDocumentConfig 更新文档的分块方法与解析参数
func (c *Client) UpdateDocumentConfig(ctx context.Context, datasetID, documentID, chunkMethod string, parserCfg *ParserConfig) error {
	ctx, span := tracer.Start(ctx, "ragflow.UpdateDocumentConfig",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("document.id", documentID),
			attribute.String("chunk_method", chunkMethod),
		))
	defer span.End()

	update := map[string]any{"chunk_method": chunkMethod}
	if parserCfg != nil {
		pc := map[string]any{
			"layout_recognize": parserCfg.LayoutRecognize,
			"html4excel":       parserCfg.HTML4Excel,
		}
		if parserCfg.ChunkTokenCount > 0 {
			pc["chunk_token_count"] = parserCfg.ChunkTokenCount
		} else if chunkMethod == "naive" {
			pc["chunk_token_count"] = 128
		}
		if parserCfg.Delimiter != "" {
			pc["delimiter"] = parserCfg.Delimiter
		} else if chunkMethod == "naive" {
			pc["delimiter"] = "\n"
		}
		update["parser_config"] = pc
	}

	path := "/api/v1/datasets/" + datasetID + "/documents/" + documentID
	if err := c.doJSON(ctx, http.MethodPut, path, update, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ParseDocuments 触发一批文档的解析
func (c *Client) ParseDocuments(ctx context.Context, datasetID string, documentIDs []string) error {
	ctx, span := tracer.Start(ctx, "ragflow.ParseDocuments",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.Int("document_count", len(documentIDs)),
		))
	defer span.End()

	path := "/api/v1/datasets/" + datasetID + "/chunks"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"document_ids": documentIDs}, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// documentStatus RAGFlow 文档状态
type documentStatus struct {
	Run         string `json:"run"`
	ProgressMsg string `json:"progress_msg"`
}

func (c *Client) getDocumentStatus(ctx context.Context, datasetID, documentID string) (*documentStatus, error) {
	var resp struct {
		Data struct {
			Docs []documentStatus `json:"docs"`
		} `json:"data"`
	}
	path := "/api/v1/datasets/" + datasetID + "/documents?id=" + url.QueryEscape(documentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Docs) == 0 {
		return nil, nil
	}
	return &resp.Data.Docs[0], nil
}

// WaitForParsing 轮询解析状态直到完成，超出重试上限返回超时错误
func (c *Client) WaitForParsing(ctx context.Context, datasetID, documentID string) error {
	ctx, span := tracer.Start(ctx, "ragflow.WaitForParsing",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("document.id", documentID),
		))
	defer span.End()

	for retry := 0; retry < c.pollRetries; retry++ {
		status, err := c.getDocumentStatus(ctx, datasetID, documentID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if status == nil {
			return apperrors.New(apperrors.CodeProcessorError, "document status not found")
		}

		switch status.Run {
		case "DONE":
			return nil
		case "FAIL":
			msg := status.ProgressMsg
			if msg == "" {
				msg = "unknown error"
			}
			return apperrors.New(apperrors.CodeProcessorError, "document parsing failed: "+msg)
		}

		if retry%5 == 0 {
			logger.Info(ctx, "document parsing in progress",
				"document_id", documentID,
				"retry", retry+1,
				"max_retries", c.pollRetries,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	err := apperrors.New(apperrors.CodeTimeout,
		fmt.Sprintf("document parsing timed out after %s", time.Duration(c.pollRetries)*c.pollInterval))
	span.RecordError(err)
	return err
}

// GetDocumentChunks 分页拉取文档的全部分块内容，partCount > 0 时只取前 partCount 条
func (c *Client) GetDocumentChunks(ctx context.Context, datasetID, documentID string, partCount int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "ragflow.GetDocumentChunks",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("document.id", documentID),
			attribute.Int("part_count", partCount),
		))
	defer span.End()

	if partCount > 0 {
		chunks, _, err := c.getChunkPage(ctx, datasetID, documentID, 1, partCount)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return chunks, nil
	}

	var all []string
	chunks, total, err := c.getChunkPage(ctx, datasetID, documentID, 1, 100)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	all = append(all, chunks...)

	pageSize := total - len(all)
	if pageSize > 1024 {
		pageSize = 1024
	}
	for page := 2; len(all) < total; page++ {
		chunks, _, err := c.getChunkPage(ctx, datasetID, documentID, page, pageSize)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(chunks) == 0 {
			break
		}
		all = append(all, chunks...)
	}

	span.SetAttributes(attribute.Int("chunk_count", len(all)))
	return all, nil
}

// DeleteDataset 删除数据集及其全部文档
func (c *Client) DeleteDataset(ctx context.Context, datasetID string) error {
	ctx, span := tracer.Start(ctx, "ragflow.DeleteDataset",
		trace.WithAttributes(attribute.String("dataset.id", datasetID)))
	defer span.End()

	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/datasets", map[string]any{"ids": []string{datasetID}}, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Client) getChunkPage(ctx context.Context, datasetID, documentID string, page, pageSize int) ([]string, int, error) {
	var resp struct {
		Data struct {
			Total  int `json:"total"`
			Chunks []struct {
				Content string `json:"content"`
			} `json:"chunks"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/api/v1/datasets/%s/documents/%s/chunks?page=%d&page_size=%d",
		datasetID, documentID, page, pageSize)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}

	contents := make([]string, 0, len(resp.Data.Chunks))
	for _, chunk := range resp.Data.Chunks {
		contents = append(contents, chunk.Content)
	}
	return contents, resp.Data.Total, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody any, respBody any) error {
	if c.baseURL == "" {
		return apperrors.New(apperrors.CodeProcessorError, "ragflow base url is empty")
	}

	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to marshal ragflow request")
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to create ragflow request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeProcessorError, "ragflow request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return apperrors.New(apperrors.CodeProcessorError,
			fmt.Sprintf("ragflow request failed: status=%d body=%s", httpResp.StatusCode, string(text)))
	}

	if respBody != nil {
		if err := json.NewDecoder(httpResp.Body).Decode(respBody); err != nil {
			return apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to decode ragflow response")
		}
	} else {
		io.Copy(io.Discard, httpResp.Body)
	}
	return nil
}
