package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "2560KiB", cfg.Upload.ChunkSize)
	assert.Equal(t, 4, cfg.Upload.ParallelUploads)
	assert.True(t, cfg.Share.Enabled)
	assert.False(t, cfg.Share.DirectLink)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
}

func TestDefaultChunkSize_IsTwoAndAHalfMiB(t *testing.T) {
	n, err := ParseSize(defaultChunkSize)
	require.NoError(t, err)
	assert.Equal(t, int64(2_621_440), n)
	assert.Zero(t, n%chunkAlignBytes)
}
