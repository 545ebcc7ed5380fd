// Package face turns sampled frames into fixed-size, standardized face crops.
package face

import (
	"context"
	"image"

	"deepfakeserver/internal/logger"

	"gocv.io/x/gocv"
)

// Crop pixels are standardized as (x - 127.5) / 128 into [-1, 1].
const (
	standardizeScale  = 1.0 / 128.0
	standardizeOffset = -127.5 / 128.0
)

// Detection is one face candidate in pixel coordinates of the frame it came from.
type Detection struct {
	Box        image.Rectangle
	Confidence float32
}

// Detector finds face candidates in an RGB frame.
type Detector interface {
	Detect(ctx context.Context, frame gocv.Mat) ([]Detection, error)
}

// Crop is a cropSize x cropSize, 3-channel float32 RGB image.
// A crop with Detected false is the zero placeholder used when no face was found.
type Crop struct {
	Mat        gocv.Mat
	Detected   bool
	Confidence float32
}

// Close releases the crop's native memory.
func (c *Crop) Close() {
	c.Mat.Close()
}

// Localizer picks the primary face in a frame and cuts it out with a margin.
type Localizer struct {
	detector  Detector
	cropSize  int
	margin    int
	threshold float32
	logger    *logger.Logger
}

// NewLocalizer creates a Localizer. margin is expressed in pixels of the final crop.
func NewLocalizer(detector Detector, cropSize, margin int, threshold float64, logger *logger.Logger) *Localizer {
	return &Localizer{
		detector:  detector,
		cropSize:  cropSize,
		margin:    margin,
		threshold: float32(threshold),
		logger:    logger,
	}
}

// CropSize is the side length of every crop.
func (l *Localizer) CropSize() int {
	return l.cropSize
}

// Localize returns the standardized crop of the most confident face in frame.
// Misses, detector failures and panics all fall back to Placeholder.
func (l *Localizer) Localize(ctx context.Context, frame gocv.Mat) (crop Crop) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Face localization panicked: %v", r)
			crop = l.Placeholder()
		}
	}()

	detections, err := l.detector.Detect(ctx, frame)
	if err != nil {
		l.logger.Warning("Face detection failed, using placeholder: %v", err)
		return l.Placeholder()
	}

	best, ok := PickBest(detections, l.threshold)
	if !ok {
		return l.Placeholder()
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	box := ExpandBox(best.Box, l.margin, l.cropSize, bounds)
	if box.Dx() < 2 || box.Dy() < 2 {
		return l.Placeholder()
	}

	mat, ok := l.cut(frame, box)
	if !ok {
		return l.Placeholder()
	}
	return Crop{Mat: mat, Detected: true, Confidence: best.Confidence}
}

func (l *Localizer) cut(frame gocv.Mat, box image.Rectangle) (gocv.Mat, bool) {
	region := frame.Region(box)
	defer region.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(region, &resized, image.Pt(l.cropSize, l.cropSize), 0, 0, gocv.InterpolationArea)
	if resized.Empty() {
		return gocv.Mat{}, false
	}

	standardized := gocv.NewMat()
	resized.ConvertToWithParams(&standardized, gocv.MatTypeCV32FC3, standardizeScale, standardizeOffset)
	if standardized.Empty() {
		standardized.Close()
		return gocv.Mat{}, false
	}
	return standardized, true
}

// Placeholder is an all-zero crop with the same shape as a real one.
func (l *Localizer) Placeholder() Crop {
	return Crop{
		Mat: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), l.cropSize, l.cropSize, gocv.MatTypeCV32FC3),
	}
}

// PickBest returns the most confident detection at or above threshold.
func PickBest(detections []Detection, threshold float32) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range detections {
		if d.Confidence < threshold || d.Box.Empty() {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}

// ExpandBox grows box so that after resizing to cropSize the face keeps margin
// pixels of context in total along each axis, then clamps it to bounds.
func ExpandBox(box image.Rectangle, margin, cropSize int, bounds image.Rectangle) image.Rectangle {
	if margin > 0 && cropSize > margin {
		mx := float64(margin) * float64(box.Dx()) / float64(cropSize-margin)
		my := float64(margin) * float64(box.Dy()) / float64(cropSize-margin)
		box = image.Rect(
			int(float64(box.Min.X)-mx/2),
			int(float64(box.Min.Y)-my/2),
			int(float64(box.Max.X)+mx/2),
			int(float64(box.Max.Y)+my/2),
		)
	}
	return box.Intersect(bounds)
}
