package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/metrics"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/service/classifier"
	"deepfakeserver/internal/service/face"
	"deepfakeserver/internal/service/features"
	"deepfakeserver/internal/service/verdict"
	"deepfakeserver/internal/service/video"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stage names a pipeline step in progress events and metrics.
type Stage string

const (
	StageSample   Stage = "sample"
	StageLocalize Stage = "localize"
	StageExtract  Stage = "extract"
	StageClassify Stage = "classify"
)

// ProgressFunc is told how many items of a stage are done.
type ProgressFunc func(stage Stage, current, total int)

// Report is the outcome of one pipeline run.
type Report struct {
	Verdict       models.Verdict
	Probabilities [2]float64
	FramesSampled int
	FacesDetected int
	Duration      time.Duration
}

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	NumFrames         int
	PlaceholderPolicy string
}

// Pipeline chains sampler, localizer, extractor and classifier for one video at a time.
// It keeps no per-request state and can serve concurrent runs.
type Pipeline struct {
	sampler    FrameSampler
	localizer  FaceLocalizer
	extractor  FeatureExtractor
	classifier SequenceClassifier
	opts       PipelineOptions
	logger     *logger.Logger
}

func NewPipeline(sampler FrameSampler, localizer FaceLocalizer, extractor FeatureExtractor, classifier SequenceClassifier, opts PipelineOptions, logger *logger.Logger) *Pipeline {
	if opts.NumFrames < 1 {
		opts.NumFrames = video.DefaultFrameCount
	}
	if opts.PlaceholderPolicy == "" {
		opts.PlaceholderPolicy = config.PlaceholderExtract
	}
	return &Pipeline{
		sampler:    sampler,
		localizer:  localizer,
		extractor:  extractor,
		classifier: classifier,
		opts:       opts,
		logger:     logger,
	}
}

// Run classifies the video at path. An unopenable container is an InputError;
// a panic anywhere below is recovered and returned as an error.
func (p *Pipeline) Run(ctx context.Context, path string, progress ProgressFunc) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline panicked: %v", r)
			report, err = nil, fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	if progress == nil {
		progress = func(Stage, int, int) {}
	}

	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	start := time.Now()

	frames, err := p.sample(ctx, tracer, path)
	if err != nil {
		return nil, err
	}
	defer video.CloseFrames(frames)
	progress(StageSample, len(frames), len(frames))

	crops, detected, err := p.localize(ctx, tracer, frames, progress)
	defer closeCrops(crops)
	if err != nil {
		return nil, err
	}

	embeddings, err := p.embed(ctx, tracer, crops, progress)
	if err != nil {
		return nil, err
	}

	probs, err := p.classify(ctx, tracer, embeddings)
	if err != nil {
		return nil, err
	}
	progress(StageClassify, 1, 1)

	report = &Report{
		Verdict:       verdict.Format(probs[classifier.ClassFake]),
		Probabilities: probs,
		FramesSampled: len(frames),
		FacesDetected: detected,
		Duration:      time.Since(start),
	}
	span.SetAttributes(
		attribute.String("verdict.label", string(report.Verdict.Label)),
		attribute.Float64("verdict.confidence", report.Verdict.Confidence),
	)
	return report, nil
}

func (p *Pipeline) sample(ctx context.Context, tracer trace.Tracer, path string) ([]video.Frame, error) {
	ctx, span := tracer.Start(ctx, "sample_frames")
	defer span.End()
	defer observe(StageSample, time.Now())

	frames, err := p.sampler.Sample(ctx, path, p.opts.NumFrames)
	if errors.Is(err, video.ErrUnreadable) {
		return nil, NewInputError("video cannot be opened", err)
	}
	if err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}

	span.SetAttributes(attribute.Int("frames.sampled", len(frames)))
	metrics.FramesSampledTotal.Add(float64(len(frames)))
	if len(frames) == 0 {
		p.logger.Warning("No frames decoded from %s, classifying an empty sequence", path)
	}
	return frames, nil
}

func (p *Pipeline) localize(ctx context.Context, tracer trace.Tracer, frames []video.Frame, progress ProgressFunc) ([]face.Crop, int, error) {
	ctx, span := tracer.Start(ctx, "localize_faces")
	defer span.End()
	defer observe(StageLocalize, time.Now())

	crops := make([]face.Crop, 0, len(frames))
	detected := 0
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return crops, detected, err
		}
		crop := p.localizer.Localize(ctx, frame.Mat)
		crops = append(crops, crop)
		if crop.Detected {
			detected++
		}
		progress(StageLocalize, i+1, len(frames))
	}

	metrics.FacesDetectedTotal.WithLabelValues("found").Add(float64(detected))
	metrics.FacesDetectedTotal.WithLabelValues("missed").Add(float64(len(frames) - detected))
	span.SetAttributes(attribute.Int("faces.detected", detected))
	return crops, detected, nil
}

// embed turns crops into the classifier input. Placeholder crops go through the
// backbone unless the zero policy substitutes a zero vector for them.
func (p *Pipeline) embed(ctx context.Context, tracer trace.Tracer, crops []face.Crop, progress ProgressFunc) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "extract_features")
	defer span.End()
	defer observe(StageExtract, time.Now())

	dim := p.classifier.InputSize()
	embeddings := make([][]float32, 0, len(crops))
	for i, crop := range crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var embedding []float32
		if !crop.Detected && p.opts.PlaceholderPolicy == config.PlaceholderZero {
			embedding = features.ZeroEmbedding(dim)
		} else {
			var err error
			embedding, err = p.extractor.Extract(ctx, crop.Mat)
			if err != nil {
				return nil, fmt.Errorf("extract frame %d: %w", i, err)
			}
		}
		embeddings = append(embeddings, embedding)
		progress(StageExtract, i+1, len(crops))
	}
	return embeddings, nil
}

func (p *Pipeline) classify(ctx context.Context, tracer trace.Tracer, embeddings [][]float32) ([2]float64, error) {
	_, span := tracer.Start(ctx, "classify_sequence")
	defer span.End()
	defer observe(StageClassify, time.Now())

	if err := ctx.Err(); err != nil {
		return [2]float64{}, err
	}
	probs, err := p.classifier.Classify(embeddings)
	if err != nil {
		return [2]float64{}, fmt.Errorf("classify sequence: %w", err)
	}
	return probs, nil
}

func observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func closeCrops(crops []face.Crop) {
	for i := range crops {
		crops[i].Close()
	}
}
