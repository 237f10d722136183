package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"kb-ext-api/internal/domain/entity"
	"kb-ext-api/internal/infrastructure/persistence/redis"
	"kb-ext-api/pkg/logger"
)

// TaskTracker 在 redis 中镜像文档任务状态，供查询接口与 worker 共用
type TaskTracker struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewTaskTracker 创建任务状态跟踪器
func NewTaskTracker(cache *redis.Cache, ttl time.Duration) *TaskTracker {
	return &TaskTracker{cache: cache, ttl: ttl}
}

// Save 写入任务状态
func (t *TaskTracker) Save(ctx context.Context, task *entity.DocumentTask) error {
	return t.cache.Set(ctx, redis.BuildDocTaskKey(task.DocID), task, t.ttl)
}

// Get 读取任务状态，不存在返回 found=false
func (t *TaskTracker) Get(ctx context.Context, docID string) (*entity.DocumentTask, bool, error) {
	data, err := t.cache.Get(ctx, redis.BuildDocTaskKey(docID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var task entity.DocumentTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, false, err
	}
	return &task, true, nil
}

// Transition 更新任务到指定状态，状态写入失败只记日志不阻断主流程
func (t *TaskTracker) Transition(ctx context.Context, docID, fileName string, status entity.DocumentTaskStatus, errMsg string) {
	task := &entity.DocumentTask{
		DocID:    docID,
		FileName: fileName,
		Status:   status,
		Error:    errMsg,
	}
	if err := t.Save(ctx, task); err != nil {
		logger.Error(ctx, "failed to update document task status", err,
			"doc_id", docID, "status", string(status))
	}
}
