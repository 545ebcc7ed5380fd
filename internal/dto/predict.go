package dto

import "deepfakeserver/internal/models"

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	Result     models.Label `json:"result"`
	Confidence float64      `json:"confidence"`
	RequestID  string       `json:"request_id"`
	Timestamp  string       `json:"timestamp"`
}

// AnalyzeResponse is the body returned by POST /api/analyze. The web client
// reads the label from prediction.
type AnalyzeResponse struct {
	PredictResponse
	Prediction models.Label `json:"prediction"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
