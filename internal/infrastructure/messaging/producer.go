package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// MessageTypeDocParse 文档解析消息类型
const MessageTypeDocParse = "doc_parse"

// DocParseMessage 文档解析任务消息
type DocParseMessage struct {
	DocID      string `json:"doc_id"`
	PartDocID  string `json:"part_doc_id,omitempty"`
	FileName   string `json:"file_name"`
	FilePath   string `json:"file_path"`
	ChunkToken int    `json:"chunk_token"`
	// Source 文件来源：local / url
	Source string `json:"source"`
}

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishDocParse 发布文档解析任务
func (p *Producer) PublishDocParse(ctx context.Context, job *DocParseMessage) (string, error) {
	msg, err := NewMessage(job.DocID, MessageTypeDocParse, job.DocID, job)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("source", job.Source)
	return p.Publish(ctx, StreamDocParse, msg)
}
