package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-ext-api/internal/domain/entity"
	"kb-ext-api/internal/infrastructure/messaging"
	"kb-ext-api/internal/infrastructure/ragflow"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
	"kb-ext-api/pkg/metrics"
)

var workerTracer = otel.Tracer("application/ingestion.worker")

// maxDownloadSize 远程文件大小上限，防止异常 URL 打爆内存
const maxDownloadSize = 100 << 20

// Processor 文档解析流水线：取源文件 → RAGFlow 解析分块 → 落盘产物 → 更新任务状态。
// 同一实例被 Redis Stream 消费者和同步 chunk_text 流程共用。
type Processor struct {
	parser            DocumentParser
	store             *ArtifactStore
	tasks             *TaskTracker
	httpClient        *http.Client
	defaultChunkToken int
	partialChunkCount int
}

// NewProcessor 创建文档处理流水线
func NewProcessor(parser DocumentParser, store *ArtifactStore, tasks *TaskTracker, defaultChunkToken, partialChunkCount int) *Processor {
	return &Processor{
		parser:            parser,
		store:             store,
		tasks:             tasks,
		httpClient:        &http.Client{Timeout: 60 * time.Second},
		defaultChunkToken: defaultChunkToken,
		partialChunkCount: partialChunkCount,
	}
}

// HandleDocParse Redis Stream 消息处理入口
func (p *Processor) HandleDocParse(ctx context.Context, msg *messaging.Message) error {
	var job messaging.DocParseMessage
	if err := msg.UnmarshalPayload(&job); err != nil {
		return fmt.Errorf("failed to unmarshal doc parse payload: %w", err)
	}
	return p.Process(ctx, &job)
}

// Process 执行单个文档的解析分块任务
func (p *Processor) Process(ctx context.Context, job *messaging.DocParseMessage) error {
	ctx, span := workerTracer.Start(ctx, "ingestion.Process",
		trace.WithAttributes(
			attribute.String("doc_id", job.DocID),
			attribute.String("source", job.Source),
		))
	defer span.End()

	ctx = logger.WithContext(ctx, logger.DocumentIDKey, job.DocID)
	start := time.Now()

	err := p.process(ctx, job)

	metrics.DocumentJobDuration.WithLabelValues(job.Source).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.DocumentJobsTotal.WithLabelValues("failed").Inc()
		p.tasks.Transition(ctx, job.DocID, job.FileName, entity.DocStatusFailed, err.Error())
		logger.Error(ctx, "document processing failed", err, "file_name", job.FileName)
		return err
	}

	metrics.DocumentJobsTotal.WithLabelValues("completed").Inc()
	p.tasks.Transition(ctx, job.DocID, job.FileName, entity.DocStatusCompleted, "")
	logger.Info(ctx, "document processing completed",
		"file_name", job.FileName, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) process(ctx context.Context, job *messaging.DocParseMessage) error {
	p.tasks.Transition(ctx, job.DocID, job.FileName, entity.DocStatusChunking, "")

	content, err := p.fetchSource(ctx, job)
	if err != nil {
		return err
	}

	chunkToken := job.ChunkToken
	if chunkToken <= 0 {
		chunkToken = p.defaultChunkToken
	}

	chunks, err := p.parseAndChunk(ctx, job, content, chunkToken)
	if err != nil {
		return err
	}

	full := buildArtifact(job.DocID, job.FileName, chunkToken, chunks)
	if err := p.store.Save(job.DocID, false, full); err != nil {
		return err
	}

	// 快速展示产物只保留前若干分片，按 part_doc_id 单独落盘
	if job.PartDocID != "" {
		partCount := p.partialChunkCount
		if partCount > len(chunks) {
			partCount = len(chunks)
		}
		partial := buildArtifact(job.PartDocID, job.FileName, chunkToken, chunks[:partCount])
		if err := p.store.Save(job.PartDocID, true, partial); err != nil {
			return err
		}
	}

	return nil
}

// parseAndChunk 走一遍完整的 RAGFlow 流程并取回全部分片文本
func (p *Processor) parseAndChunk(ctx context.Context, job *messaging.DocParseMessage, content []byte, chunkToken int) ([]string, error) {
	datasetID, err := p.parser.EnsureDataset(ctx, datasetNameFor(job.DocID))
	if err != nil {
		return nil, err
	}

	documentID, err := p.parser.UploadDocument(ctx, datasetID, job.FileName, content)
	if err != nil {
		return nil, err
	}

	parserCfg := &ragflow.ParserConfig{
		ChunkTokenCount: chunkToken,
		Delimiter:       "\n",
	}
	if err := p.parser.UpdateDocumentConfig(ctx, datasetID, documentID, "naive", parserCfg); err != nil {
		return nil, err
	}

	if err := p.parser.ParseDocuments(ctx, datasetID, []string{documentID}); err != nil {
		return nil, err
	}

	if err := p.parser.WaitForParsing(ctx, datasetID, documentID); err != nil {
		return nil, err
	}

	chunks, err := p.parser.GetDocumentChunks(ctx, datasetID, documentID, 0)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, apperrors.New(apperrors.CodeProcessorError, "document parsing produced no chunks")
	}

	// 分片已取回，回收一次性数据集；失败只记日志
	if err := p.parser.DeleteDataset(ctx, datasetID); err != nil {
		logger.Warn(ctx, "failed to delete ragflow dataset", "dataset_id", datasetID, "error", err.Error())
	}
	return chunks, nil
}

// fetchSource 读取本地文件或下载远程文件，返回文件内容
func (p *Processor) fetchSource(ctx context.Context, job *messaging.DocParseMessage) ([]byte, error) {
	if job.Source == "url" || strings.HasPrefix(job.FilePath, "http://") || strings.HasPrefix(job.FilePath, "https://") {
		return p.download(ctx, job.FilePath)
	}

	content, err := os.ReadFile(job.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeProcessorError,
				fmt.Sprintf("source file not found: %s", job.FilePath))
		}
		return nil, apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to read source file")
	}
	return content, nil
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to build download request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProcessorError,
			fmt.Sprintf("failed to download file from %s", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.CodeProcessorError,
			fmt.Sprintf("download failed with status %d", resp.StatusCode))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProcessorError, "failed to read download body")
	}
	return content, nil
}

func buildArtifact(docID, fileName string, chunkToken int, texts []string) *entity.ChunkArtifact {
	chunks := make([]entity.DocumentChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, entity.DocumentChunk{
			ChunkID: fmt.Sprintf("%s_%d", docID, i),
			Content: text,
		})
	}
	return &entity.ChunkArtifact{
		DocID:      docID,
		FileName:   fileName,
		ChunkToken: chunkToken,
		Chunks:     chunks,
	}
}

// datasetNameFor 每个文档独立的数据集，避免分片互相污染
func datasetNameFor(docID string) string {
	return "kb_doc_" + docID
}

// FileNameFromPath 从路径或 URL 中提取文件名
func FileNameFromPath(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	name := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
