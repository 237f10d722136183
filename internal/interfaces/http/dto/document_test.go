package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzingDocumentChunkTokenCount(t *testing.T) {
	// JSON 解码后的数值是 float64，方法要能取出整数
	raw := `{"document_id":"d1","document_name":"a.pdf","parser_flag":1,"parser_config":{"chunk_token_count":256}}`
	var req AnalyzingDocumentRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, 256, req.ChunkTokenCount())
}

func TestAnalyzingDocumentChunkTokenCountDefaults(t *testing.T) {
	tests := []struct {
		name string
		req  AnalyzingDocumentRequest
	}{
		{"flag unset", AnalyzingDocumentRequest{ParserConfig: map[string]any{"chunk_token_count": float64(256)}}},
		{"config nil", AnalyzingDocumentRequest{ParserFlag: 1}},
		{"key missing", AnalyzingDocumentRequest{ParserFlag: 1, ParserConfig: map[string]any{}}},
		{"wrong type", AnalyzingDocumentRequest{ParserFlag: 1, ParserConfig: map[string]any{"chunk_token_count": "256"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, tt.req.ChunkTokenCount())
		})
	}
}

func TestTextChunkingChunkTokenCount(t *testing.T) {
	req := TextChunkingRequest{
		Text:         "正文",
		ParserFlag:   1,
		ParserConfig: map[string]any{"chunk_token_count": float64(128)},
	}
	assert.Equal(t, 128, req.ChunkTokenCount())

	req.ParserFlag = 0
	assert.Zero(t, req.ChunkTokenCount())
}
