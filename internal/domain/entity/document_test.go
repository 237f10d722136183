package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pagedArtifact(n int) *ChunkArtifact {
	chunks := make([]DocumentChunk, n)
	for i := range chunks {
		chunks[i] = DocumentChunk{ChunkID: string(rune('a' + i))}
	}
	return &ChunkArtifact{DocID: "doc", Chunks: chunks}
}

func TestChunkArtifactPage(t *testing.T) {
	a := pagedArtifact(5)

	assert.Len(t, a.Page(0, 2), 2)
	assert.Equal(t, "c", a.Page(2, 2)[0].ChunkID)

	// limit 超出末尾时截断
	assert.Len(t, a.Page(3, 10), 2)

	// offset 越界返回空
	assert.Nil(t, a.Page(5, 2))
	assert.Nil(t, a.Page(100, 2))

	// 负 offset 归零，非正 limit 取全部
	assert.Len(t, a.Page(-1, 0), 5)
}

func TestDocumentTaskTerminal(t *testing.T) {
	tests := []struct {
		status DocumentTaskStatus
		want   bool
	}{
		{DocStatusPending, false},
		{DocStatusParsed, false},
		{DocStatusChunking, false},
		{DocStatusCompleted, true},
		{DocStatusFailed, true},
	}
	for _, tt := range tests {
		task := &DocumentTask{DocID: "d", Status: tt.status}
		assert.Equal(t, tt.want, task.Terminal(), string(tt.status))
	}
}
