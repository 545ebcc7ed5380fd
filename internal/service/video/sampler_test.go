package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestSampleIndices(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		n        int
		expected []int
	}{
		{"no frames", 0, 60, nil},
		{"negative total", -1, 60, nil},
		{"zero requested", 10, 0, nil},
		{"single sample", 100, 1, []int{0}},
		{"endpoints", 100, 2, []int{0, 99}},
		{"even spacing", 10, 4, []int{0, 3, 6, 9}},
		{"exact fit", 5, 5, []int{0, 1, 2, 3, 4}},
		{"short video collapses repeats", 3, 6, []int{0, 1, 2}},
		{"truncation", 7, 3, []int{0, 3, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleIndices(tt.total, tt.n))
		})
	}
}

func TestSampleIndices_Properties(t *testing.T) {
	for total := 1; total <= 300; total += 7 {
		for _, n := range []int{1, 2, 10, 60, 90} {
			idx := SampleIndices(total, n)

			require.NotEmpty(t, idx)
			assert.Equal(t, 0, idx[0])
			assert.LessOrEqual(t, len(idx), n)
			if n > 1 {
				assert.Equal(t, total-1, idx[len(idx)-1], "total=%d n=%d", total, n)
			}
			if total >= n {
				assert.Len(t, idx, n, "total=%d n=%d", total, n)
			}
			for i := 1; i < len(idx); i++ {
				assert.Greater(t, idx[i], idx[i-1])
			}
		}
	}
}

func TestSample_ReturnsRequestedFramesInOrder(t *testing.T) {
	path := testutil.WriteVideo(t, 90, 64, 48, func(i int) gocv.Scalar {
		return gocv.NewScalar(float64(i), float64(i), float64(i), 0)
	})

	sampler := NewSampler(32, logger.NewNop())
	frames, err := sampler.Sample(context.Background(), path, 60)
	require.NoError(t, err)
	defer CloseFrames(frames)

	require.Len(t, frames, 60)
	for i, f := range frames {
		assert.Equal(t, 32, f.Mat.Rows())
		assert.Equal(t, 32, f.Mat.Cols())
		assert.Equal(t, 3, f.Mat.Channels())
		if i > 0 {
			assert.Greater(t, f.Index, frames[i-1].Index)
		}
	}
	assert.Equal(t, 0, frames[0].Index)
	assert.Equal(t, 89, frames[len(frames)-1].Index)
}

func TestSample_ShortVideoReturnsFewerFrames(t *testing.T) {
	path := testutil.WriteVideo(t, 12, 64, 48, testutil.Blank)

	frames, err := NewSampler(32, logger.NewNop()).Sample(context.Background(), path, 60)
	require.NoError(t, err)
	defer CloseFrames(frames)

	assert.NotEmpty(t, frames)
	assert.LessOrEqual(t, len(frames), 12)
}

func TestSample_ConvertsToRGB(t *testing.T) {
	// Pure blue in OpenCV's BGR order.
	path := testutil.WriteVideo(t, 4, 64, 64, func(int) gocv.Scalar {
		return gocv.NewScalar(255, 0, 0, 0)
	})

	frames, err := NewSampler(32, logger.NewNop()).Sample(context.Background(), path, 2)
	require.NoError(t, err)
	defer CloseFrames(frames)
	require.NotEmpty(t, frames)

	px := frames[0].Mat.GetVecbAt(16, 16)
	assert.Less(t, int(px[0]), 60, "red channel should be near zero")
	assert.Greater(t, int(px[2]), 190, "blue channel should be last after conversion")
}

func TestSample_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp4")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0644))

	_, err := NewSampler(32, logger.NewNop()).Sample(context.Background(), path, 60)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestSample_CancelledContext(t *testing.T) {
	path := testutil.WriteVideo(t, 30, 32, 32, testutil.Blank)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSampler(32, logger.NewNop()).Sample(ctx, path, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
