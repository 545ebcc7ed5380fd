package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_predictions_total",
		Help: "Total number of prediction requests, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deepfake_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepfake_frames_sampled_total",
		Help: "Total number of frames sampled across all requests",
	})

	FacesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_faces_total",
		Help: "Face localization results, by whether a face was found",
	}, []string{"result"})

	UploadsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_uploads_rejected_total",
		Help: "Uploads rejected before the pipeline ran, by reason",
	}, []string{"reason"})

	InFlightPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deepfake_inflight_predictions",
		Help: "Number of pipelines currently running",
	})
)
