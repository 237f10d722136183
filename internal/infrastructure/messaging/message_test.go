package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))

	// 超过上限后封顶
	assert.Equal(t, time.Minute, cfg.CalculateBackoff(10))
	assert.Equal(t, time.Minute, cfg.CalculateBackoff(100))
}

func TestDocParseMessageRoundtrip(t *testing.T) {
	msg := &DocParseMessage{
		DocID:      "doc-1",
		PartDocID:  "doc-2",
		FileName:   "manual.pdf",
		Source:     "url",
		FilePath:   "https://example.com/manual.pdf",
		ChunkToken: 512,
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got DocParseMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *msg, got)
}
