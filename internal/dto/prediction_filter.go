// PredictionFilters describe user-provided filters to narrow the prediction history.
package dto

import (
	"time"

	"deepfakeserver/internal/models"
)

type PredictionFilters struct {
	Label      models.Label
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
