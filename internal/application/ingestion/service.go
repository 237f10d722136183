package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-ext-api/internal/domain/entity"
	"kb-ext-api/internal/infrastructure/messaging"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

var tracer = otel.Tracer("application/ingestion")

// UploadInput 文档上传请求
type UploadInput struct {
	FilePath   string
	ChunkToken int
}

// UploadResult 上传响应，id 在入队前生成，解析在后台进行
type UploadResult struct {
	DatasetID        string `json:"dataset_id"`
	DocumentID       string `json:"document_id"`
	DocumentName     string `json:"document_name"`
	PartDocumentID   string `json:"part_document_id"`
	PartDocumentName string `json:"part_document_name"`
	Sign             bool   `json:"sign"`
}

// AnalyzeInput 分块结果查询请求
type AnalyzeInput struct {
	DocumentID   string
	DocumentName string
	ChunkToken   int
}

// Service 文档摄取服务：上传入队、分块结果查询、文本同步分块
type Service struct {
	store             *ArtifactStore
	tasks             *TaskTracker
	queue             JobQueue
	processor         *Processor
	defaultChunkToken int
}

// NewService 创建文档摄取服务
func NewService(store *ArtifactStore, tasks *TaskTracker, queue JobQueue, processor *Processor, defaultChunkToken int) *Service {
	return &Service{
		store:             store,
		tasks:             tasks,
		queue:             queue,
		processor:         processor,
		defaultChunkToken: defaultChunkToken,
	}
}

// Upload 登记文档解析任务并投递到队列，立即返回生成的标识。
// 实际解析由 doc-worker 异步执行，状态通过任务缓存查询。
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "ingestion.Upload",
		trace.WithAttributes(attribute.String("file_path", in.FilePath)))
	defer span.End()

	if strings.TrimSpace(in.FilePath) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "file_path is required")
	}

	documentID := newDocID()
	partDocumentID := newDocID()
	documentName := FileNameFromPath(in.FilePath)
	result := &UploadResult{
		DatasetID:        newDocID(),
		DocumentID:       documentID,
		DocumentName:     documentName,
		PartDocumentID:   partDocumentID,
		PartDocumentName: "part_" + documentName,
		Sign:             true,
	}

	chunkToken := in.ChunkToken
	if chunkToken <= 0 {
		chunkToken = s.defaultChunkToken
	}

	source := "local"
	if strings.HasPrefix(in.FilePath, "http://") || strings.HasPrefix(in.FilePath, "https://") {
		source = "url"
	}

	s.tasks.Transition(ctx, documentID, documentName, entity.DocStatusPending, "")

	job := &messaging.DocParseMessage{
		DocID:      documentID,
		PartDocID:  partDocumentID,
		FileName:   documentName,
		FilePath:   in.FilePath,
		ChunkToken: chunkToken,
		Source:     source,
	}
	if _, err := s.queue.PublishDocParse(ctx, job); err != nil {
		span.RecordError(err)
		s.tasks.Transition(ctx, documentID, documentName, entity.DocStatusFailed, err.Error())
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to enqueue document job")
	}

	logger.Info(ctx, "document upload accepted",
		"document_id", documentID, "document_name", documentName, "source", source)
	return result, nil
}

// Analyze 读取已解析文档的分块结果。
// 文档名或 id 含 part 时读取快速展示产物，否则读取完整产物。
func (s *Service) Analyze(ctx context.Context, in *AnalyzeInput) ([]entity.DocumentChunk, error) {
	ctx, span := tracer.Start(ctx, "ingestion.Analyze",
		trace.WithAttributes(attribute.String("document_id", in.DocumentID)))
	defer span.End()

	ctx = logger.WithContext(ctx, logger.DocumentIDKey, in.DocumentID)

	partial := strings.Contains(strings.ToLower(in.DocumentName), "part") ||
		strings.Contains(strings.ToLower(in.DocumentID), "part")
	span.SetAttributes(attribute.Bool("partial", partial))

	artifact, found, err := s.store.Load(in.DocumentID, partial)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to load document chunks")
	}
	if found {
		if len(artifact.Chunks) == 0 {
			return nil, apperrors.New(apperrors.CodeInternalError, "no chunks found for document")
		}
		return artifact.Chunks, nil
	}

	// 产物不存在时用任务状态区分"处理中/失败/未知文档"
	task, taskFound, err := s.tasks.Get(ctx, in.DocumentID)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to query document task")
	}
	if !taskFound {
		return nil, apperrors.ErrDocumentNotFound
	}
	if task.Status == entity.DocStatusFailed {
		return nil, apperrors.New(apperrors.CodeInternalError,
			fmt.Sprintf("document processing failed: %s", task.Error))
	}
	return nil, apperrors.New(apperrors.CodeInternalError, "document not yet parsed")
}

// ChunkText 对纯文本同步执行解析分块，临时文件落在存储目录的 temp 子目录。
func (s *Service) ChunkText(ctx context.Context, text string, chunkToken int) ([]entity.DocumentChunk, error) {
	ctx, span := tracer.Start(ctx, "ingestion.ChunkText",
		trace.WithAttributes(attribute.Int("text_length", len(text))))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "text is required")
	}
	if chunkToken <= 0 {
		chunkToken = s.defaultChunkToken
	}

	documentID := newDocID()
	tempPath := filepath.Join(s.store.TempDir(), documentID+".md")
	if err := os.WriteFile(tempPath, []byte(text), 0o644); err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to write temp file")
	}
	defer os.Remove(tempPath)

	job := &messaging.DocParseMessage{
		DocID:      documentID,
		FileName:   documentID + ".md",
		FilePath:   tempPath,
		ChunkToken: chunkToken,
		Source:     "text",
	}
	if err := s.processor.Process(ctx, job); err != nil {
		span.RecordError(err)
		return nil, apperrors.AsAppError(err)
	}

	artifact, found, err := s.store.Load(documentID, false)
	if err != nil || !found {
		span.RecordError(err)
		return nil, apperrors.New(apperrors.CodeInternalError, "text chunking produced no result")
	}
	return artifact.Chunks, nil
}

// TaskStatus 查询文档任务状态
func (s *Service) TaskStatus(ctx context.Context, docID string) (*entity.DocumentTask, error) {
	task, found, err := s.tasks.Get(ctx, docID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to query document task")
	}
	if !found {
		return nil, apperrors.ErrDocumentNotFound
	}
	return task, nil
}

// newDocID 生成无连字符的文档标识
func newDocID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
