package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/service"
	"deepfakeserver/internal/service/storage"
	"deepfakeserver/internal/service/websocket"

	"github.com/stretchr/testify/assert"
)

type nopPredictor struct{}

func (nopPredictor) Predict(context.Context, service.Request) (*service.Report, error) {
	return nil, service.ErrBusy
}

func newRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		APIKey:            apiKey,
		CORSOrigins:       []string{"*"},
		UploadDirectory:   filepath.Join(t.TempDir(), "uploads"),
		MaxUploadSizeMB:   1,
		AllowedExtensions: []string{".mp4"},
	}
	log := logger.NewNop()
	return SetupRoutes(Services{
		Predictor: nopPredictor{},
		Uploads:   storage.NewUploadStore(cfg, log),
		Hub:       websocket.NewHubService(log),
		Ready:     func() bool { return true },
	}, cfg, log)
}

func TestSetupRoutes(t *testing.T) {
	router := newRouter(t, "")

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/predict", http.StatusMethodNotAllowed},
		{http.MethodPost, "/predict", http.StatusBadRequest},
		{http.MethodGet, "/api/predictions", http.StatusServiceUnavailable},
		{http.MethodGet, "/logs/verbose", http.StatusNotFound},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSetupRoutes_RequiresAPIKey(t *testing.T) {
	router := newRouter(t, "k")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/predictions/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
