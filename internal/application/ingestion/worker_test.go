package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileNameFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain path", "docs/manual.pdf", "manual.pdf"},
		{"url with query", "https://example.com/files/report.pdf?token=abc", "report.pdf"},
		{"url with fragment", "https://example.com/guide.md#section", "guide.md"},
		{"windows path", `C:\files\报告.docx`, "报告.docx"},
		{"bare name", "notes.txt", "notes.txt"},
		{"root only", "/", "document"},
		{"empty", "", "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileNameFromPath(tt.path))
		})
	}
}

func TestBuildArtifact(t *testing.T) {
	artifact := buildArtifact("doc-9", "manual.pdf", 512, []string{"a", "b", "c"})

	assert.Equal(t, "doc-9", artifact.DocID)
	assert.Equal(t, "manual.pdf", artifact.FileName)
	assert.Equal(t, 512, artifact.ChunkToken)
	assert.Len(t, artifact.Chunks, 3)
	assert.Equal(t, "doc-9_0", artifact.Chunks[0].ChunkID)
	assert.Equal(t, "doc-9_2", artifact.Chunks[2].ChunkID)
	assert.Equal(t, "b", artifact.Chunks[1].Content)
}

func TestBuildArtifactEmpty(t *testing.T) {
	artifact := buildArtifact("doc-0", "empty.md", 128, nil)
	assert.NotNil(t, artifact.Chunks)
	assert.Empty(t, artifact.Chunks)
}

func TestDatasetNameFor(t *testing.T) {
	assert.Equal(t, "kb_doc_abc123", datasetNameFor("abc123"))
}
