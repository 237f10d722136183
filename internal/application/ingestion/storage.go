// Package ingestion 实现文档上传、解析与分块的应用逻辑
package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kb-ext-api/internal/domain/entity"
)

const (
	chunksSubdir        = "chunks"
	partialChunksSubdir = "partial_chunks"
	tempSubdir          = "temp"
)

// ArtifactStore 分块产物的本地文件存储，完整结果与快速展示结果分目录存放
type ArtifactStore struct {
	baseDir string
}

// NewArtifactStore 创建产物存储并确保目录结构存在
func NewArtifactStore(baseDir string) (*ArtifactStore, error) {
	for _, sub := range []string{chunksSubdir, partialChunksSubdir, tempSubdir} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
	}
	return &ArtifactStore{baseDir: baseDir}, nil
}

// TempDir 临时文件目录
func (s *ArtifactStore) TempDir() string {
	return filepath.Join(s.baseDir, tempSubdir)
}

func (s *ArtifactStore) artifactPath(docID string, partial bool) string {
	sub := chunksSubdir
	if partial {
		sub = partialChunksSubdir
	}
	return filepath.Join(s.baseDir, sub, docID+".json")
}

// Save 落盘分块产物
func (s *ArtifactStore) Save(docID string, partial bool, artifact *entity.ChunkArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk artifact: %w", err)
	}
	if err := os.WriteFile(s.artifactPath(docID, partial), data, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk artifact: %w", err)
	}
	return nil
}

// Load 读取分块产物，不存在时返回 found=false
func (s *ArtifactStore) Load(docID string, partial bool) (*entity.ChunkArtifact, bool, error) {
	data, err := os.ReadFile(s.artifactPath(docID, partial))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read chunk artifact: %w", err)
	}

	var artifact entity.ChunkArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal chunk artifact: %w", err)
	}
	return &artifact, true, nil
}
