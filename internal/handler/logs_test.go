package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir(), LogLevel: "error"})
	require.NoError(t, err)
	return log
}

func levelRequest(method, level string) *http.Request {
	req := httptest.NewRequest(method, "/logs/"+level, nil)
	req.SetPathValue("level", level)
	return req
}

func TestShowLogsHandler(t *testing.T) {
	log := newFileLogger(t)
	log.Warning("disk almost full")
	_ = log.Sync()

	rec := httptest.NewRecorder()
	ShowLogsHandler(log).ServeHTTP(rec, levelRequest(http.MethodGet, "warning"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk almost full")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestShowLogsHandler_UnknownLevel(t *testing.T) {
	rec := httptest.NewRecorder()
	ShowLogsHandler(newFileLogger(t)).ServeHTTP(rec, levelRequest(http.MethodGet, "debug"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearLogsHandler(t *testing.T) {
	log := newFileLogger(t)
	log.Error("something broke")
	_ = log.Sync()

	rec := httptest.NewRecorder()
	ClearLogsHandler(log).ServeHTTP(rec, levelRequest(http.MethodPost, "error"))

	require.Equal(t, http.StatusNoContent, rec.Code)
	data, err := os.ReadFile(filepath.Join(log.Dir(), "error.log"))
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}
