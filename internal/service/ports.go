package service

import (
	"context"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/service/face"
	"deepfakeserver/internal/service/video"

	"gocv.io/x/gocv"
)

type FrameSampler interface {
	Sample(ctx context.Context, path string, n int) ([]video.Frame, error)
}

// FaceLocalizer never fails: a miss yields a placeholder crop.
type FaceLocalizer interface {
	Localize(ctx context.Context, frame gocv.Mat) face.Crop
}

type FeatureExtractor interface {
	Extract(ctx context.Context, crop gocv.Mat) ([]float32, error)
}

// SequenceClassifier returns [P(real), P(fake)] for an ordered embedding sequence.
type SequenceClassifier interface {
	Classify(seq [][]float32) ([2]float64, error)
	InputSize() int
}

// Runner executes the whole pipeline for one video.
type Runner interface {
	Run(ctx context.Context, path string, progress ProgressFunc) (*Report, error)
}

// HistoryRecorder stores finished predictions.
type HistoryRecorder interface {
	Insert(ctx context.Context, p *models.Prediction) (int64, error)
}

// VerdictNotifier forwards finished predictions to other systems.
type VerdictNotifier interface {
	PublishVerdict(ctx context.Context, event dto.VerdictEvent) error
}

// EventPublisher pushes live events to connected clients.
type EventPublisher interface {
	Publish(event any)
}
