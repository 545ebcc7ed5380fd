package repository

import (
	"context"
	"errors"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// PredictionRepository defines the interface for prediction history operations.
type PredictionRepository interface {
	// Create operations
	Insert(ctx context.Context, p *models.Prediction) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*models.Prediction, error)
	GetAll(ctx context.Context, filter *dto.PredictionFilters) ([]models.Prediction, error)
	GetTotalCount(ctx context.Context, filter *dto.PredictionFilters) (int, error)
	GetStats(ctx context.Context) (*models.PredictionStats, error)

	// Delete operations
	DeleteAll(ctx context.Context) error

	Close() error
}
