package models

import "time"

// Prediction represents a finished prediction stored in the history.
type Prediction struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	Filename        string    `json:"filename"`
	FileSize        int64     `json:"filesize"`
	Label           Label     `json:"result"`
	Confidence      float64   `json:"confidence"`
	FakeProbability float64   `json:"fake_probability"`
	FramesSampled   int       `json:"frames_sampled"`
	FacesDetected   int       `json:"faces_detected"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// PredictionStats contains aggregate numbers about stored predictions.
type PredictionStats struct {
	Total             int     `json:"total"`
	Fake              int     `json:"fake"`
	Real              int     `json:"real"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}
