package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// PlaceholderExtract runs placeholder crops through the backbone like any other crop.
	PlaceholderExtract = "extract"
	// PlaceholderZero substitutes a zero embedding for frames without a face.
	PlaceholderZero = "zero"
)

type Config struct {
	Port            int           `env:"PORT"              envDefault:"8080"`
	APIKey          string        `env:"API_KEY"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT"   envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	MaxConcurrent   int           `env:"MAX_CONCURRENT_PREDICTIONS" envDefault:"4"`

	UploadDirectory   string        `env:"UPLOAD_DIR"          envDefault:"./uploads"`
	MaxUploadSizeMB   int64         `env:"MAX_UPLOAD_SIZE_MB"  envDefault:"100"`
	AllowedExtensions []string      `env:"ALLOWED_EXTENSIONS"  envDefault:".mp4,.avi,.mov,.mkv,.webm" envSeparator:","`
	UploadTTL         time.Duration `env:"UPLOAD_TTL"          envDefault:"1h"`
	JanitorInterval   time.Duration `env:"UPLOAD_JANITOR_INTERVAL" envDefault:"5m"`

	NumFrames         int     `env:"NUM_FRAMES"         envDefault:"60"`
	CropSize          int     `env:"CROP_SIZE"          envDefault:"224"`
	FaceMargin        int     `env:"FACE_MARGIN"        envDefault:"20"`
	FaceThreshold     float64 `env:"FACE_THRESHOLD"     envDefault:"0.5"`
	PlaceholderPolicy string  `env:"PLACEHOLDER_POLICY" envDefault:"extract"`
	InferenceWorkers  int     `env:"INFERENCE_WORKERS"  envDefault:"2"`

	FaceModelPath       string `env:"FACE_MODEL_PATH"        envDefault:"./models/res10_300x300_ssd_iter_140000.caffemodel"`
	FaceConfigPath      string `env:"FACE_CONFIG_PATH"       envDefault:"./models/deploy.prototxt"`
	BackboneModelPath   string `env:"BACKBONE_MODEL_PATH"    envDefault:"./models/resnext50_32x4d_features.onnx"`
	ClassifierModelPath string `env:"CLASSIFIER_MODEL_PATH"  envDefault:"./models/bilstm_model.safetensors"`
	EmbeddingDim        int    `env:"EMBEDDING_DIM"          envDefault:"2048"`

	HistoryDriver string `env:"HISTORY_DRIVER" envDefault:"sqlite"`
	HistoryDSN    string `env:"HISTORY_DSN"    envDefault:"./data/predictions.db"`

	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"deepfake.verdicts"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`

	LogDirectory string `env:"LOG_DIR"   envDefault:"./logs"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, then parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.AllowedExtensions = exts
	c.PlaceholderPolicy = strings.ToLower(strings.TrimSpace(c.PlaceholderPolicy))
	c.HistoryDriver = strings.ToLower(strings.TrimSpace(c.HistoryDriver))
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.NumFrames < 1:
		return fmt.Errorf("NUM_FRAMES must be >= 1, got %d", c.NumFrames)
	case c.CropSize < 32:
		return fmt.Errorf("CROP_SIZE must be >= 32, got %d", c.CropSize)
	case c.FaceMargin < 0:
		return fmt.Errorf("FACE_MARGIN must be >= 0, got %d", c.FaceMargin)
	case c.FaceThreshold <= 0 || c.FaceThreshold > 1:
		return fmt.Errorf("FACE_THRESHOLD must be in (0, 1], got %f", c.FaceThreshold)
	case c.EmbeddingDim < 1:
		return fmt.Errorf("EMBEDDING_DIM must be >= 1, got %d", c.EmbeddingDim)
	case c.MaxUploadSizeMB < 1:
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be >= 1, got %d", c.MaxUploadSizeMB)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.PlaceholderPolicy != PlaceholderExtract && c.PlaceholderPolicy != PlaceholderZero {
		return fmt.Errorf("PLACEHOLDER_POLICY must be %q or %q, got %q", PlaceholderExtract, PlaceholderZero, c.PlaceholderPolicy)
	}
	switch c.HistoryDriver {
	case "sqlite", "postgres", "none", "":
	default:
		return fmt.Errorf("HISTORY_DRIVER must be sqlite, postgres or none, got %q", c.HistoryDriver)
	}
	if c.InferenceWorkers < 1 {
		c.InferenceWorkers = 1
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	return nil
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB << 20
}

// IsAllowedExtension reports whether the file name carries an accepted video extension.
func (c *Config) IsAllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
