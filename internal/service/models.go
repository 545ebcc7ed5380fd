package service

import (
	"fmt"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/service/ai"
	"deepfakeserver/internal/service/classifier"
	"deepfakeserver/internal/service/face"
	"deepfakeserver/internal/service/features"
	"deepfakeserver/internal/service/video"
)

// Models holds every pretrained network. It is built once at startup and is
// read-only afterwards.
type Models struct {
	FaceDetector *ai.NetPool
	Backbone     *ai.NetPool
	Classifier   *classifier.BiLSTM
}

// LoadModels loads all networks named in the configuration. Any missing or
// malformed model file is an error.
func LoadModels(cfg *config.Config, logger *logger.Logger) (*Models, error) {
	m := &Models{}

	var err error
	m.Classifier, err = classifier.Load(cfg.ClassifierModelPath)
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	if m.Classifier.InputSize() != cfg.EmbeddingDim {
		return nil, fmt.Errorf("classifier expects %d-dim embeddings, EMBEDDING_DIM is %d", m.Classifier.InputSize(), cfg.EmbeddingDim)
	}
	logger.Info("Classifier loaded: input %d, hidden %d", m.Classifier.InputSize(), m.Classifier.Hidden())

	m.FaceDetector, err = ai.LoadFaceDetectorPool(cfg.FaceModelPath, cfg.FaceConfigPath, cfg.InferenceWorkers)
	if err != nil {
		return nil, fmt.Errorf("load face detector: %w", err)
	}

	m.Backbone, err = features.LoadBackbonePool(cfg.BackboneModelPath, cfg.InferenceWorkers)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("load backbone: %w", err)
	}

	logger.Info("Detection networks initialized successfully (%d replicas each)", cfg.InferenceWorkers)
	return m, nil
}

// Pipeline wires the loaded models into a ready-to-run Pipeline.
func (m *Models) Pipeline(cfg *config.Config, logger *logger.Logger) *Pipeline {
	sampler := video.NewSampler(cfg.CropSize, logger)
	localizer := face.NewLocalizer(ai.NewFaceDetector(m.FaceDetector), cfg.CropSize, cfg.FaceMargin, cfg.FaceThreshold, logger)
	extractor := features.NewExtractor(m.Backbone, cfg.CropSize, cfg.EmbeddingDim)

	return NewPipeline(sampler, localizer, extractor, m.Classifier, PipelineOptions{
		NumFrames:         cfg.NumFrames,
		PlaceholderPolicy: cfg.PlaceholderPolicy,
	}, logger)
}

// Close releases the native networks.
func (m *Models) Close() {
	if m.FaceDetector != nil {
		m.FaceDetector.Close()
	}
	if m.Backbone != nil {
		m.Backbone.Close()
	}
}
