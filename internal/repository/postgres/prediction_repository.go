package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS predictions (
		id BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		filesize BIGINT NOT NULL DEFAULT 0,
		label TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		fake_probability DOUBLE PRECISION NOT NULL,
		frames_sampled INTEGER NOT NULL DEFAULT 0,
		faces_detected INTEGER NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_label ON predictions(label);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

const predictionColumns = `id, request_id, filename, filesize, label, confidence, fake_probability,
	frames_sampled, faces_detected, duration_ms, created_at`

// PredictionRepository implements repository.PredictionRepository for PostgreSQL.
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository wraps an existing pool.
func NewPredictionRepository(pool *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// Open connects to dsn and creates the schema when missing.
func Open(ctx context.Context, dsn string) (*PredictionRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return NewPredictionRepository(pool), nil
}

func (r *PredictionRepository) Insert(ctx context.Context, p *models.Prediction) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions (request_id, filename, filesize, label, confidence, fake_probability,
			frames_sampled, faces_detected, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		p.RequestID, p.Filename, p.FileSize, string(p.Label), p.Confidence, p.FakeProbability,
		p.FramesSampled, p.FacesDetected, p.DurationMs, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return p.ID, nil
}

func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*models.Prediction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id=$1`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find prediction by id: %w", err)
	}
	return p, nil
}

func (r *PredictionRepository) GetAll(ctx context.Context, filter *dto.PredictionFilters) ([]models.Prediction, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE TRUE` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []models.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

func (r *PredictionRepository) GetTotalCount(ctx context.Context, filter *dto.PredictionFilters) (int, error) {
	where, args := buildWhere(filter)
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions WHERE TRUE`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return count, nil
}

func (r *PredictionRepository) GetStats(ctx context.Context) (*models.PredictionStats, error) {
	stats := &models.PredictionStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE label = 'FAKE'),
			COUNT(*) FILTER (WHERE label = 'REAL'),
			COALESCE(AVG(confidence), 0),
			COALESCE(AVG(duration_ms), 0)::DOUBLE PRECISION
		FROM predictions`,
	).Scan(&stats.Total, &stats.Fake, &stats.Real, &stats.AverageConfidence, &stats.AverageDurationMs)
	if err != nil {
		return nil, fmt.Errorf("prediction stats: %w", err)
	}
	return stats, nil
}

func (r *PredictionRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM predictions`); err != nil {
		return fmt.Errorf("delete predictions: %w", err)
	}
	return nil
}

func (r *PredictionRepository) Close() error {
	r.pool.Close()
	return nil
}

// buildWhere returns the filter clause with numbered placeholders and its arguments.
func buildWhere(filter *dto.PredictionFilters) (string, []any) {
	if filter == nil {
		return "", nil
	}

	query := ""
	args := []any{}

	if filter.Label != "" {
		args = append(args, string(filter.Label))
		query += fmt.Sprintf(" AND label = $%d", len(args))
	}
	if !filter.DateAfter.IsZero() {
		args = append(args, filter.DateAfter.UTC().Format("2006-01-02"))
		query += fmt.Sprintf(" AND created_at::date >= $%d::date", len(args))
	}
	if !filter.DateBefore.IsZero() {
		args = append(args, filter.DateBefore.UTC().Format("2006-01-02"))
		query += fmt.Sprintf(" AND created_at::date <= $%d::date", len(args))
	}
	return query, args
}

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
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
