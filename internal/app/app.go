package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/repository"
	"deepfakeserver/internal/repository/postgres"
	"deepfakeserver/internal/repository/sqlite"
	"deepfakeserver/internal/routes"
	"deepfakeserver/internal/service"
	"deepfakeserver/internal/service/broker"
	"deepfakeserver/internal/service/storage"
	"deepfakeserver/internal/service/websocket"
	"deepfakeserver/internal/tracing"
)

type App struct {
	config          *config.Config
	logger          *logger.Logger
	models          *service.Models
	uploads         *storage.UploadStore
	hubService      *websocket.HubService
	history         repository.PredictionRepository
	publisher       *broker.Publisher
	manager         *service.Manager
	shutdownTracing func(context.Context) error
	ready           atomic.Bool
}

// NewApp loads the models and connects every backing service. Missing model files
// and an unreachable history database are fatal; the broker is optional.
func NewApp(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*App, error) {
	shutdownTracing, err := tracing.Init(ctx, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	models, err := service.LoadModels(cfg, logger)
	if err != nil {
		shutdownTracing(ctx)
		return nil, err
	}

	history, err := OpenHistory(ctx, cfg)
	if err != nil {
		models.Close()
		shutdownTracing(ctx)
		return nil, err
	}

	a := &App{
		config:          cfg,
		logger:          logger,
		models:          models,
		uploads:         storage.NewUploadStore(cfg, logger),
		hubService:      websocket.NewHubService(logger),
		history:         history,
		shutdownTracing: shutdownTracing,
	}

	opts := service.ManagerOptions{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.RequestTimeout,
		History:       history,
		Events:        a.hubService,
	}
	if cfg.RabbitMQURL != "" {
		publisher, err := broker.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			logger.Warning("⚠️  Verdict publishing disabled: %v", err)
		} else {
			a.publisher = publisher
			opts.Notifier = publisher
		}
	}

	a.manager = service.NewManager(models.Pipeline(cfg, logger), opts, logger)
	return a, nil
}

// OpenHistory opens the prediction history selected by HISTORY_DRIVER.
// It returns a nil repository when the history is disabled.
func OpenHistory(ctx context.Context, cfg *config.Config) (repository.PredictionRepository, error) {
	switch cfg.HistoryDriver {
	case "sqlite", "":
		repo, err := sqlite.Open(cfg.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return repo, nil
	case "postgres":
		repo, err := postgres.Open(ctx, cfg.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return repo, nil
	default:
		return nil, nil
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// releases every resource.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Start background services
	go a.uploads.Run(bgCtx)
	go a.hubService.Run(bgCtx)

	// Setup routes
	router := routes.SetupRoutes(routes.Services{
		Predictor:      a.manager,
		Uploads:        a.uploads,
		Hub:            a.hubService,
		PredictionRepo: a.history,
		Ready:          a.ready.Load,
	}, a.config, a.logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	a.logger.Info("🚀 Deepfake Detection Server")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("📁 Uploads: %s (max %d MB)", a.config.UploadDirectory, a.config.MaxUploadSizeMB)
	a.logger.Info("🤖 Models: %s, %s, %s", a.config.FaceModelPath, a.config.BackboneModelPath, a.config.ClassifierModelPath)
	a.logger.Info("🗄️  History: %s", a.historyDriver())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	a.ready.Store(true)

	select {
	case err := <-serveErr:
		a.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.ready.Store(false)
	a.logger.Info("Shutting down, waiting up to %s for running predictions", a.config.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (a *App) historyDriver() string {
	if a.history == nil {
		return "disabled"
	}
	return a.config.HistoryDriver
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Error closing broker connection: %v", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Error("Error closing history: %v", err)
		}
	}
	a.models.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Error("Error flushing traces: %v", err)
	}
	_ = a.logger.Sync()
}
