package routes

import (
	"net/http"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/handler"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/middleware"
	"deepfakeserver/internal/repository"
	"deepfakeserver/internal/service/storage"
	"deepfakeserver/internal/service/websocket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the long-lived components the HTTP layer talks to.
// PredictionRepo is nil when the history is disabled.
type Services struct {
	Predictor      handler.Predictor
	Uploads        *storage.UploadStore
	Hub            *websocket.HubService
	PredictionRepo repository.PredictionRepository
	Ready          func() bool
}

// SetupRoutes registers the prediction, history, event, log and probe endpoints
// and wraps the mux with recovery, request logging, CORS and API key middleware.
func SetupRoutes(services Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Prediction endpoints
	mux.HandleFunc("POST /predict", handler.PredictHandler(services.Predictor, services.Uploads, cfg, logger))
	mux.HandleFunc("POST /api/analyze", handler.AnalyzeHandler(services.Predictor, services.Uploads, cfg, logger))

	// History endpoints
	mux.HandleFunc("GET /api/predictions", handler.GetPredictionsHandler(services.PredictionRepo, logger))
	mux.HandleFunc("DELETE /api/predictions", handler.ClearPredictionsHandler(services.PredictionRepo, logger))
	mux.HandleFunc("GET /api/predictions/stats", handler.GetPredictionStatsHandler(services.PredictionRepo, logger))
	mux.HandleFunc("GET /api/predictions/{id}", handler.GetPredictionHandler(services.PredictionRepo, logger))

	// Live events
	mux.HandleFunc("GET /api/events", handler.EventsWebsocketHandler(services.Hub, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Probes and metrics
	mux.HandleFunc("GET /healthz", handler.HealthHandler(logger))
	mux.HandleFunc("GET /readyz", handler.ReadyHandler(services.Ready, logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware
	var h http.Handler = mux
	h = middleware.AuthMiddleware(cfg.APIKey)(h)
	h = middleware.CORSMiddleware(cfg.CORSOrigins)(h)
	h = middleware.LoggingMiddleware(logger)(h)
	return middleware.RecoverMiddleware(logger)(h)
}
