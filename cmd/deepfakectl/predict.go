package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"deepfakeserver/internal/app"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/service"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var record bool

// predictOutput is what `deepfakectl predict` prints.
type predictOutput struct {
	Result        models.Label `json:"result"`
	Confidence    float64      `json:"confidence"`
	RequestID     string       `json:"request_id"`
	Timestamp     string       `json:"timestamp"`
	ProbReal      float64      `json:"prob_real"`
	ProbFake      float64      `json:"prob_fake"`
	FramesSampled int          `json:"frames_sampled"`
	FacesDetected int          `json:"faces_detected"`
	DurationMs    int64        `json:"duration_ms"`
}

var predictCmd = &cobra.Command{
	Use:   "predict <video>",
	Short: "Classify a local video as REAL or FAKE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPredict(cmd.Context(), args[0])
	},
}

func init() {
	predictCmd.Flags().BoolVar(&record, "record", false, "store the verdict in the prediction history")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("read video: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if !cfg.IsAllowedExtension(path) {
		appLogger.Warning("⚠️  %s does not have a known video extension, trying anyway", filepath.Base(path))
	}

	loaded, err := service.LoadModels(cfg, appLogger)
	if err != nil {
		return err
	}
	defer loaded.Close()

	var history service.HistoryRecorder
	if record {
		repo, err := app.OpenHistory(ctx, cfg)
		if err != nil {
			return err
		}
		if repo == nil {
			return fmt.Errorf("--record needs HISTORY_DRIVER to be sqlite or postgres")
		}
		defer repo.Close()
		history = repo
	}

	bar := progressbar.NewOptions(cfg.NumFrames,
		progressbar.OptionSetDescription("🎬 Sampling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	manager := service.NewManager(&progressRunner{
		runner: loaded.Pipeline(cfg, appLogger),
		bar:    bar,
	}, service.ManagerOptions{
		MaxConcurrent: 1,
		Timeout:       cfg.RequestTimeout,
		History:       history,
	}, appLogger)

	requestID := uuid.NewString()
	report, err := manager.Predict(ctx, service.Request{
		RequestID: requestID,
		Path:      path,
		Filename:  filepath.Base(path),
		FileSize:  info.Size(),
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(predictOutput{
		Result:        report.Verdict.Label,
		Confidence:    report.Verdict.Confidence,
		RequestID:     requestID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ProbReal:      report.Probabilities[0],
		ProbFake:      report.Probabilities[1],
		FramesSampled: report.FramesSampled,
		FacesDetected: report.FacesDetected,
		DurationMs:    report.Duration.Milliseconds(),
	})
}

var stageLabels = map[service.Stage]string{
	service.StageSample:   "🎬 Sampling",
	service.StageLocalize: "🙂 Finding faces",
	service.StageExtract:  "🧠 Embedding",
	service.StageClassify: "⚖️  Classifying",
}

// progressRunner drives a terminal progress bar from pipeline progress callbacks.
type progressRunner struct {
	runner service.Runner
	bar    *progressbar.ProgressBar
	stage  service.Stage
}

func (p *progressRunner) Run(ctx context.Context, path string, progress service.ProgressFunc) (*service.Report, error) {
	return p.runner.Run(ctx, path, func(stage service.Stage, current, total int) {
		if total > 0 {
			if stage != p.stage {
				p.stage = stage
				p.bar.Reset()
				p.bar.ChangeMax(total)
				p.bar.Describe(stageLabels[stage])
			}
			_ = p.bar.Set(current)
		}
		if progress != nil {
			progress(stage, current, total)
		}
	})
}
