package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/repository"
)

const predictionColumns = `id, request_id, filename, filesize, label, confidence, fake_probability,
	frames_sampled, faces_detected, duration_ms, created_at`

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Open creates the database at path and returns a repository that owns it.
func Open(path string) (*PredictionRepository, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	return NewPredictionRepository(db), nil
}

// Insert adds a new prediction record to the database.
func (r *PredictionRepository) Insert(ctx context.Context, p *models.Prediction) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Second)

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO predictions (request_id, filename, filesize, label, confidence, fake_probability,
			frames_sampled, faces_detected, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RequestID, p.Filename, p.FileSize, string(p.Label), p.Confidence, p.FakeProbability,
		p.FramesSampled, p.FacesDetected, p.DurationMs, p.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// GetByID retrieves a prediction by its ID.
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*models.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// GetAll retrieves predictions based on filter criteria, newest first.
func (r *PredictionRepository) GetAll(ctx context.Context, filter *dto.PredictionFilters) ([]models.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE 1=1` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []models.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

// GetTotalCount returns the total count of predictions matching the filter.
func (r *PredictionRepository) GetTotalCount(ctx context.Context, filter *dto.PredictionFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// GetStats returns aggregate numbers about stored predictions.
func (r *PredictionRepository) GetStats(ctx context.Context) (*models.PredictionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &models.PredictionStats{}
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN label = 'FAKE' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN label = 'REAL' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(confidence), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM predictions
	`).Scan(&stats.Total, &stats.Fake, &stats.Real, &stats.AverageConfidence, &stats.AverageDurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// DeleteAll removes all predictions.
func (r *PredictionRepository) DeleteAll(ctx context.Context) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM predictions`); err != nil {
		return fmt.Errorf("failed to delete predictions: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *PredictionRepository) Close() error {
	return r.db.Close()
}

func buildWhere(filter *dto.PredictionFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	query := ""
	args := []interface{}{}

	if filter.Label != "" {
		query += " AND label = ?"
		args = append(args, string(filter.Label))
	}

	if !filter.DateAfter.IsZero() {
		query += " AND DATE(created_at) >= DATE(?)"
		args = append(args, filter.DateAfter.UTC().Format("2006-01-02"))
	}

	if !filter.DateBefore.IsZero() {
		query += " AND DATE(created_at) <= DATE(?)"
		args = append(args, filter.DateBefore.UTC().Format("2006-01-02"))
	}

	return query, args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row scanner) (*models.Prediction, error) {
	var p models.Prediction
	var label string
	err := row.Scan(&p.ID, &p.RequestID, &p.Filename, &p.FileSize, &label, &p.Confidence, &p.FakeProbability,
		&p.FramesSampled, &p.FacesDetected, &p.DurationMs, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Label = models.Label(label)
	return &p, nil
}
