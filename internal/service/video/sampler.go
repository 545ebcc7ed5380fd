package video

import (
	"context"
	"errors"
	"fmt"
	"image"

	"deepfakeserver/internal/logger"

	"gocv.io/x/gocv"
)

// ErrUnreadable is returned when the container cannot be opened at all.
var ErrUnreadable = errors.New("video cannot be opened")

// DefaultFrameCount is the number of frames sampled when the caller has no preference.
const DefaultFrameCount = 60

// Frame is a decoded RGB frame resized to the crop size.
type Frame struct {
	// Index is the position of the frame in the source stream.
	Index int
	Mat   gocv.Mat
}

// CloseFrames releases the native memory of every frame.
func CloseFrames(frames []Frame) {
	for i := range frames {
		frames[i].Mat.Close()
	}
}

// Sampler extracts evenly spaced frames from a video file.
type Sampler struct {
	cropSize int
	logger   *logger.Logger
}

// NewSampler creates a Sampler that resizes every frame to cropSize x cropSize.
func NewSampler(cropSize int, logger *logger.Logger) *Sampler {
	return &Sampler{cropSize: cropSize, logger: logger}
}

// Sample decodes the video at path and returns up to n frames at evenly spaced positions,
// in ascending order. Short videos and streams that end early yield fewer frames without
// an error; only a container that cannot be opened is reported as ErrUnreadable.
func (s *Sampler) Sample(ctx context.Context, path string, n int) ([]Frame, error) {
	if n < 1 {
		n = DefaultFrameCount
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return nil, ErrUnreadable
	}

	total := int(capture.Get(gocv.VideoCaptureFrameCount))
	if total <= 0 {
		// Container metadata is missing (common for webm); count by decoding.
		s.logger.Warning("Frame count unavailable for %s, counting frames", path)
		total = countFrames(path)
	}

	indices := SampleIndices(total, n)
	if len(indices) == 0 {
		s.logger.Warning("No decodable frames in %s", path)
		return []Frame{}, nil
	}

	raw := gocv.NewMat()
	defer raw.Close()

	frames := make([]Frame, 0, len(indices))
	next := 0
	for pos := 0; next < len(indices); pos++ {
		if err := ctx.Err(); err != nil {
			CloseFrames(frames)
			return nil, err
		}
		if ok := capture.Read(&raw); !ok || raw.Empty() {
			break
		}
		if pos != indices[next] {
			continue
		}

		mat, err := s.prepare(raw)
		if err != nil {
			CloseFrames(frames)
			return nil, err
		}
		frames = append(frames, Frame{Index: pos, Mat: mat})
		next++
	}

	if len(frames) < len(indices) {
		s.logger.Warning("Decoding of %s ended early: %d of %d frames", path, len(frames), len(indices))
	}
	return frames, nil
}

// prepare converts a decoded BGR frame to RGB at the crop size.
func (s *Sampler) prepare(raw gocv.Mat) (gocv.Mat, error) {
	rgb := gocv.NewMat()
	defer rgb.Close()

	if err := gocv.CvtColor(raw, &rgb, gocv.ColorBGRToRGB); err != nil {
		return gocv.Mat{}, fmt.Errorf("convert frame to RGB: %w", err)
	}

	resized := gocv.NewMat()
	gocv.Resize(rgb, &resized, image.Pt(s.cropSize, s.cropSize), 0, 0, gocv.InterpolationLinear)
	if resized.Empty() {
		resized.Close()
		return gocv.Mat{}, fmt.Errorf("resize frame to %dx%d failed", s.cropSize, s.cropSize)
	}
	return resized, nil
}

// SampleIndices returns n positions evenly spaced over [0, total-1], first and last
// included, truncated to integers. Repeated positions (total < n) are collapsed, so the
// result is strictly ascending and never longer than total.
func SampleIndices(total, n int) []int {
	if total <= 0 || n <= 0 {
		return nil
	}
	if n == 1 {
		return []int{0}
	}

	step := float64(total-1) / float64(n-1)
	indices := make([]int, 0, min(n, total))
	last := -1
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		if i == n-1 {
			idx = total - 1
		}
		if idx <= last {
			continue
		}
		indices = append(indices, idx)
		last = idx
	}
	return indices
}

// countFrames decodes the whole stream and returns the number of frames read.
func countFrames(path string) int {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return 0
	}
	defer capture.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	count := 0
	for capture.Read(&mat) && !mat.Empty() {
		count++
	}
	return count
}
