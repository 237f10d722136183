package entity

// DocumentTaskStatus 文档解析任务状态
type DocumentTaskStatus string

const (
	DocStatusPending   DocumentTaskStatus = "pending"
	DocStatusParsed    DocumentTaskStatus = "parsed"
	DocStatusChunking  DocumentTaskStatus = "chunking"
	DocStatusCompleted DocumentTaskStatus = "completed"
	DocStatusFailed    DocumentTaskStatus = "failed"
)

// DocumentTask 文档异步处理任务，doc_id 在上传时生成并作为后续查询键
type DocumentTask struct {
	DocID    string             `json:"doc_id"`
	FileName string             `json:"file_name"`
	Status   DocumentTaskStatus `json:"status"`
	Error    string             `json:"error,omitempty"`
}

// Terminal 任务是否已到达终态
func (t *DocumentTask) Terminal() bool {
	return t.Status == DocStatusCompleted || t.Status == DocStatusFailed
}

// DocumentChunk 解析得到的单个分片
type DocumentChunk struct {
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
	Page    int    `json:"page,omitempty"`
}

// ChunkArtifact 一次解析的产物，按 doc_id 落盘并可分页读取
type ChunkArtifact struct {
	DocID      string          `json:"doc_id"`
	FileName   string          `json:"file_name"`
	ChunkToken int             `json:"chunk_token"`
	Chunks     []DocumentChunk `json:"chunks"`
}

// Page 返回 [offset, offset+limit) 范围内的分片，越界部分截断
func (a *ChunkArtifact) Page(offset, limit int) []DocumentChunk {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(a.Chunks) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(a.Chunks) {
		end = len(a.Chunks)
	}
	return a.Chunks[offset:end]
}
