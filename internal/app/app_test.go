package app

import (
	"context"
	"path/filepath"
	"testing"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenHistory(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "data", "predictions.db")
		repo, err := OpenHistory(context.Background(), &config.Config{HistoryDriver: "sqlite", HistoryDSN: dsn})
		require.NoError(t, err)
		require.NotNil(t, repo)
		defer repo.Close()

		count, err := repo.GetTotalCount(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("disabled", func(t *testing.T) {
		repo, err := OpenHistory(context.Background(), &config.Config{HistoryDriver: "none"})
		require.NoError(t, err)
		assert.Nil(t, repo)
	})
}

func TestNewApp_MissingModels(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		ClassifierModelPath: filepath.Join(dir, "missing.safetensors"),
		FaceModelPath:       filepath.Join(dir, "missing.caffemodel"),
		BackboneModelPath:   filepath.Join(dir, "missing.onnx"),
		HistoryDriver:       "none",
		EmbeddingDim:        2048,
		InferenceWorkers:    1,
	}

	_, err := NewApp(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}
