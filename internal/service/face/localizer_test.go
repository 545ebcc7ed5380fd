package face

import (
	"context"
	"errors"
	"image"
	"testing"

	"deepfakeserver/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubDetector struct {
	detections []Detection
	err        error
	panicWith  any
}

func (s stubDetector) Detect(context.Context, gocv.Mat) ([]Detection, error) {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.detections, s.err
}

func whiteFrame(size int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), size, size, gocv.MatTypeCV8UC3)
}

func TestPickBest(t *testing.T) {
	detections := []Detection{
		{Box: image.Rect(0, 0, 10, 10), Confidence: 0.4},
		{Box: image.Rect(5, 5, 20, 20), Confidence: 0.9},
		{Box: image.Rect(1, 1, 8, 8), Confidence: 0.7},
		{Box: image.Rectangle{}, Confidence: 0.99},
	}

	best, ok := PickBest(detections, 0.5)
	require.True(t, ok)
	assert.Equal(t, float32(0.9), best.Confidence)

	_, ok = PickBest(detections, 0.95)
	assert.False(t, ok)

	_, ok = PickBest(nil, 0.1)
	assert.False(t, ok)
}

func TestExpandBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name     string
		box      image.Rectangle
		margin   int
		cropSize int
		expected image.Rectangle
	}{
		{"centered", image.Rect(40, 40, 80, 80), 20, 224, image.Rect(38, 38, 81, 81)},
		{"clamped at origin", image.Rect(0, 0, 50, 50), 20, 224, image.Rect(0, 0, 52, 52)},
		{"no margin", image.Rect(10, 20, 30, 40), 0, 224, image.Rect(10, 20, 30, 40)},
		{"margin not smaller than crop", image.Rect(10, 20, 30, 40), 224, 224, image.Rect(10, 20, 30, 40)},
		{"outside bounds", image.Rect(90, 90, 130, 130), 0, 224, image.Rect(90, 90, 100, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandBox(tt.box, tt.margin, tt.cropSize, bounds))
		})
	}
}

func TestLocalize_DetectedFace(t *testing.T) {
	frame := whiteFrame(96)
	defer frame.Close()

	det := stubDetector{detections: []Detection{{Box: image.Rect(20, 20, 60, 60), Confidence: 0.93}}}
	localizer := NewLocalizer(det, 32, 4, 0.5, logger.NewNop())

	crop := localizer.Localize(context.Background(), frame)
	defer crop.Close()

	assert.True(t, crop.Detected)
	assert.InDelta(t, 0.93, crop.Confidence, 1e-6)
	assert.Equal(t, 32, crop.Mat.Rows())
	assert.Equal(t, 32, crop.Mat.Cols())
	assert.Equal(t, gocv.MatTypeCV32FC3, crop.Mat.Type())

	px := crop.Mat.GetVecfAt(16, 16)
	assert.InDelta(t, (255-127.5)/128, px[0], 1e-4)
}

func TestLocalize_FallsBackToPlaceholder(t *testing.T) {
	tests := []struct {
		name     string
		detector stubDetector
	}{
		{"no detections", stubDetector{}},
		{"below threshold", stubDetector{detections: []Detection{{Box: image.Rect(0, 0, 40, 40), Confidence: 0.2}}}},
		{"detector error", stubDetector{err: errors.New("net exploded")}},
		{"detector panic", stubDetector{panicWith: "bad mat"}},
		{"degenerate box", stubDetector{detections: []Detection{{Box: image.Rect(10, 10, 11, 11), Confidence: 0.9}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := whiteFrame(64)
			defer frame.Close()

			crop := NewLocalizer(tt.detector, 32, 0, 0.5, logger.NewNop()).Localize(context.Background(), frame)
			defer crop.Close()

			assert.False(t, crop.Detected)
			assert.Equal(t, 32, crop.Mat.Rows())
			assert.Equal(t, 32, crop.Mat.Cols())
			assert.Equal(t, 3, crop.Mat.Channels())
			sum := crop.Mat.Sum()
			assert.Zero(t, sum.Val1+sum.Val2+sum.Val3)
		})
	}
}
