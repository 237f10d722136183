package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/domain/entity"
)

func TestArtifactStoreRoundtrip(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	artifact := &entity.ChunkArtifact{
		DocID:      "doc-1",
		FileName:   "manual.pdf",
		ChunkToken: 256,
		Chunks: []entity.DocumentChunk{
			{ChunkID: "doc-1_0", Content: "第一段"},
			{ChunkID: "doc-1_1", Content: "第二段"},
		},
	}
	require.NoError(t, store.Save("doc-1", false, artifact))

	got, found, err := store.Load("doc-1", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, artifact, got)

	// 完整产物与部分产物互不可见
	_, found, err = store.Load("doc-1", true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArtifactStoreLoadMissing(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	got, found, err := store.Load("no-such-doc", false)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestArtifactStoreTempDir(t *testing.T) {
	base := t.TempDir()
	store, err := NewArtifactStore(base)
	require.NoError(t, err)

	info, statErr := os.Stat(store.TempDir())
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(base, "temp"), store.TempDir())
}
