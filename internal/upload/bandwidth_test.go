package upload

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestBandwidthLimiter_DisabledIsNil(t *testing.T) {
	assert.Nil(t, NewBandwidthLimiter(0, nil))
	assert.Nil(t, NewBandwidthLimiter(-5, nil))

	var bl *BandwidthLimiter

	r := strings.NewReader("abc")
	assert.Same(t, r, bl.WrapReader(context.Background(), r))
}

func TestBandwidthLimiter_PassesDataThrough(t *testing.T) {
	bl := NewBandwidthLimiter(64<<20, nil)
	require.NotNil(t, bl)

	data := bytes.Repeat([]byte("x"), 100_000)

	got, err := io.ReadAll(bl.WrapReader(context.Background(), bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWaitN_SplitsLargeRequests(t *testing.T) {
	l := rate.NewLimiter(rate.Limit(1e9), 10)

	require.NoError(t, waitN(context.Background(), l, 25))
}

func TestWaitN_HonorsContext(t *testing.T) {
	l := rate.NewLimiter(rate.Limit(1), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, waitN(ctx, l, 5))
}

func TestUpload_WithBandwidthLimit(t *testing.T) {
	te := newTestEngine(t, func(o *Options) {
		o.Limiter = NewBandwidthLimiter(64<<20, nil)
	})

	_, o := te.Upload(context.Background(), Request{Path: writeTestFile(t, "f.bin", 300_000)})
	require.Equal(t, StatusSuccess, o.Status, o.String())
	requirePartition(t, te.remote.putCalls(), 300_000)
}
