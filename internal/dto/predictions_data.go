// PredictionsData is a paginated response payload for the prediction history.
package dto

import "deepfakeserver/internal/models"

type PredictionsData struct {
	Predictions []models.Prediction `json:"predictions"`
	Length      int                 `json:"length"`
	TotalPages  int                 `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
	Limit       int                 `json:"pageSize"`
}
