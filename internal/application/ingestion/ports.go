package ingestion

import (
	"context"

	"kb-ext-api/internal/infrastructure/messaging"
	"kb-ext-api/internal/infrastructure/ragflow"
)

// DocumentParser 文档解析后端，由 RAGFlow 客户端实现
type DocumentParser interface {
	EnsureDataset(ctx context.Context, name string) (string, error)
	UploadDocument(ctx context.Context, datasetID, fileName string, content []byte) (string, error)
	UpdateDocumentConfig(ctx context.Context, datasetID, documentID, chunkMethod string, parserCfg *ragflow.ParserConfig) error
	ParseDocuments(ctx context.Context, datasetID string, documentIDs []string) error
	WaitForParsing(ctx context.Context, datasetID, documentID string) error
	GetDocumentChunks(ctx context.Context, datasetID, documentID string, partCount int) ([]string, error)
	DeleteDataset(ctx context.Context, datasetID string) error
}

// JobQueue 解析任务投递队列，由 Redis Stream 生产者实现
type JobQueue interface {
	PublishDocParse(ctx context.Context, job *messaging.DocParseMessage) (string, error)
}
