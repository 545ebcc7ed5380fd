package ai

import (
	"context"
	"fmt"
	"image"

	"deepfakeserver/internal/service/face"

	"gocv.io/x/gocv"
)

const (
	// ssdInputSize is the input resolution of the res10 SSD face model.
	ssdInputSize = 300
	// minDetectionConfidence drops the empty rows the SSD pads its output with.
	minDetectionConfidence = 0.05
)

// ssdMean is the res10 training mean in RGB order; swapRB turns both the frame and the mean to BGR.
var ssdMean = gocv.NewScalar(123, 177, 104, 0)

// Forwarder runs a prepared blob through a network.
type Forwarder interface {
	Forward(ctx context.Context, blob gocv.Mat) (gocv.Mat, error)
}

// FaceDetector finds faces with the OpenCV DNN res10 SSD model.
type FaceDetector struct {
	net Forwarder
}

// NewFaceDetector wraps a pool of SSD face networks.
func NewFaceDetector(net Forwarder) *FaceDetector {
	return &FaceDetector{net: net}
}

// LoadFaceDetectorPool loads replicas of the Caffe face model.
func LoadFaceDetectorPool(modelPath, configPath string, replicas int) (*NetPool, error) {
	return NewNetPool("face-detector", replicas, func() (gocv.Net, error) {
		return LoadNet(modelPath, configPath)
	})
}

// Detect returns every face candidate in an RGB frame, in pixel coordinates.
func (d *FaceDetector) Detect(ctx context.Context, frame gocv.Mat) ([]face.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	blob := gocv.BlobFromImage(frame, 1.0, image.Pt(ssdInputSize, ssdInputSize), ssdMean, true, false)
	defer blob.Close()

	output, err := d.net.Forward(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("face detector forward: %w", err)
	}
	defer output.Close()

	return parseSSDOutput(output, frame.Cols(), frame.Rows()), nil
}

// parseSSDOutput reads rows of [batch_id, class_id, confidence, x1, y1, x2, y2]
// with coordinates relative to the frame size.
func parseSSDOutput(output gocv.Mat, width, height int) []face.Detection {
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	var detections []face.Detection
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence < minDetectionConfidence {
			continue
		}
		x1 := int(rows.GetFloatAt(i, 3) * float32(width))
		y1 := int(rows.GetFloatAt(i, 4) * float32(height))
		x2 := int(rows.GetFloatAt(i, 5) * float32(width))
		y2 := int(rows.GetFloatAt(i, 6) * float32(height))

		box := image.Rect(x1, y1, x2, y2).Intersect(image.Rect(0, 0, width, height))
		if box.Empty() {
			continue
		}
		detections = append(detections, face.Detection{Box: box, Confidence: confidence})
	}
	return detections
}
