// Package features maps face crops to backbone embeddings.
package features

import (
	"context"
	"fmt"
	"image"

	"deepfakeserver/internal/service/ai"

	"gocv.io/x/gocv"
)

// ImageNet channel statistics, RGB order.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Extractor runs crops through a CNN backbone whose classification head is the identity.
type Extractor struct {
	net      ai.Forwarder
	cropSize int
	dim      int
}

// NewExtractor creates an Extractor producing dim-length embeddings.
func NewExtractor(net ai.Forwarder, cropSize, dim int) *Extractor {
	return &Extractor{net: net, cropSize: cropSize, dim: dim}
}

// LoadBackbonePool loads replicas of the ONNX backbone.
func LoadBackbonePool(modelPath string, replicas int) (*ai.NetPool, error) {
	return ai.NewNetPool("backbone", replicas, func() (gocv.Net, error) {
		return ai.LoadNet(modelPath, "")
	})
}

// Dim is the embedding length.
func (e *Extractor) Dim() int {
	return e.dim
}

// Extract normalizes a float32 RGB crop and returns its embedding.
func (e *Extractor) Extract(ctx context.Context, crop gocv.Mat) ([]float32, error) {
	if crop.Empty() {
		return nil, fmt.Errorf("empty crop")
	}
	if crop.Channels() != 3 {
		return nil, fmt.Errorf("crop has %d channels, want 3", crop.Channels())
	}

	blob := gocv.BlobFromImage(crop, 1.0, image.Pt(e.cropSize, e.cropSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if err := NormalizeCHW(data, e.cropSize*e.cropSize); err != nil {
		return nil, err
	}

	output, err := e.net.Forward(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("backbone forward: %w", err)
	}
	defer output.Close()

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read backbone output: %w", err)
	}
	if len(values) != e.dim {
		return nil, fmt.Errorf("backbone returned %d values, want %d", len(values), e.dim)
	}

	embedding := make([]float32, e.dim)
	copy(embedding, values)
	return embedding, nil
}

// NormalizeCHW applies ImageNet normalization in place to a planar RGB tensor
// holding plane values per channel.
func NormalizeCHW(data []float32, plane int) error {
	if plane <= 0 || len(data) != 3*plane {
		return fmt.Errorf("tensor has %d values, want 3x%d", len(data), plane)
	}
	for c := 0; c < 3; c++ {
		mean, std := ImageNetMean[c], ImageNetStd[c]
		channel := data[c*plane : (c+1)*plane]
		for i, v := range channel {
			channel[i] = (v - mean) / std
		}
	}
	return nil
}

// ZeroEmbedding is the embedding substituted for frames without a face
// when placeholders skip the backbone.
func ZeroEmbedding(dim int) []float32 {
	return make([]float32, dim)
}
