package service

import (
	"context"
	"errors"
	"time"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/metrics"
	"deepfakeserver/internal/models"
)

// sideEffectTimeout bounds history writes and notifications after a run.
const sideEffectTimeout = 5 * time.Second

// Request describes one uploaded video to classify.
type Request struct {
	RequestID string
	Path      string
	Filename  string
	FileSize  int64
}

// Manager admits predictions, runs them with a deadline and fans the results out
// to the history store, live clients and the message broker.
type Manager struct {
	runner   Runner
	history  HistoryRecorder
	events   EventPublisher
	notifier VerdictNotifier
	logger   *logger.Logger

	slots   chan struct{}
	timeout time.Duration
}

// ManagerOptions configures a Manager. History, Events and Notifier are optional.
type ManagerOptions struct {
	MaxConcurrent int
	Timeout       time.Duration
	History       HistoryRecorder
	Events        EventPublisher
	Notifier      VerdictNotifier
}

func NewManager(runner Runner, opts ManagerOptions, logger *logger.Logger) *Manager {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	manager := &Manager{
		runner:   runner,
		history:  opts.History,
		events:   opts.Events,
		notifier: opts.Notifier,
		logger:   logger,
		slots:    make(chan struct{}, opts.MaxConcurrent),
		timeout:  opts.Timeout,
	}

	manager.logger.Info("🎬 Manager started - up to %d concurrent predictions", opts.MaxConcurrent)
	return manager
}

// Predict runs the pipeline for req. It fails fast with ErrBusy when all slots are taken.
func (m *Manager) Predict(ctx context.Context, req Request) (*Report, error) {
	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	default:
		m.logger.Warning("⚠️  All prediction slots busy - rejecting %s", req.RequestID)
		metrics.PredictionsTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	metrics.InFlightPredictions.Inc()
	defer metrics.InFlightPredictions.Dec()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	log := m.logger.With("request_id", req.RequestID)
	log.Info("📹 Prediction started for %s (%d bytes)", req.Filename, req.FileSize)

	report, err := m.runner.Run(ctx, req.Path, m.progress(req.RequestID))
	if err != nil {
		m.recordFailure(log, err)
		return nil, err
	}

	metrics.PredictionsTotal.WithLabelValues(string(report.Verdict.Label)).Inc()
	log.Info("Prediction finished: %s %.2f%% (%d frames, %d faces, %s)",
		report.Verdict.Label, report.Verdict.Confidence, report.FramesSampled, report.FacesDetected, report.Duration)

	m.fanOut(ctx, log, req, report)
	return report, nil
}

func (m *Manager) progress(requestID string) ProgressFunc {
	if m.events == nil {
		return nil
	}
	return func(stage Stage, current, total int) {
		m.events.Publish(dto.ProgressEvent{
			Type:      dto.EventProgress,
			RequestID: requestID,
			Stage:     string(stage),
			Current:   current,
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (m *Manager) recordFailure(log *logger.Logger, err error) {
	switch {
	case IsInputError(err):
		metrics.PredictionsTotal.WithLabelValues("rejected").Inc()
		log.Warning("Prediction rejected: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.PredictionsTotal.WithLabelValues("timeout").Inc()
		log.Error("Prediction timed out after %s", m.timeout)
	case errors.Is(err, context.Canceled):
		metrics.PredictionsTotal.WithLabelValues("canceled").Inc()
		log.Warning("Prediction canceled by client")
	default:
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		log.Error("Prediction failed: %v", err)
	}
}

// fanOut stores and announces a finished prediction. Failures are logged only;
// the client still gets its verdict.
func (m *Manager) fanOut(ctx context.Context, log *logger.Logger, req Request, report *Report) {
	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if m.history != nil {
		_, err := m.history.Insert(ctx, &models.Prediction{
			RequestID:       req.RequestID,
			Filename:        req.Filename,
			FileSize:        req.FileSize,
			Label:           report.Verdict.Label,
			Confidence:      report.Verdict.Confidence,
			FakeProbability: report.Verdict.FakeProbability,
			FramesSampled:   report.FramesSampled,
			FacesDetected:   report.FacesDetected,
			DurationMs:      report.Duration.Milliseconds(),
			CreatedAt:       now,
		})
		if err != nil {
			log.Error("Error saving prediction to history: %v", err)
		}
	}

	event := dto.VerdictEvent{
		Type:            dto.EventVerdict,
		RequestID:       req.RequestID,
		Filename:        req.Filename,
		Result:          string(report.Verdict.Label),
		Confidence:      report.Verdict.Confidence,
		FakeProbability: report.Verdict.FakeProbability,
		FramesSampled:   report.FramesSampled,
		FacesDetected:   report.FacesDetected,
		DurationMs:      report.Duration.Milliseconds(),
		Timestamp:       now.Format(time.RFC3339),
	}
	if m.events != nil {
		m.events.Publish(event)
	}
	if m.notifier != nil {
		if err := m.notifier.PublishVerdict(ctx, event); err != nil {
			log.Error("Error publishing verdict: %v", err)
		}
	}
}
