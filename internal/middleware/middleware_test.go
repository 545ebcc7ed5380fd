package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"deepfakeserver/internal/logger"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("s3cret")(okHandler)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"predict without key", http.MethodPost, "/predict", "", http.StatusUnauthorized},
		{"predict with wrong key", http.MethodPost, "/predict", "nope", http.StatusUnauthorized},
		{"predict with key", http.MethodPost, "/predict", "s3cret", http.StatusOK},
		{"history without key", http.MethodGet, "/api/predictions", "", http.StatusUnauthorized},
		{"logs without key", http.MethodGet, "/logs/info", "", http.StatusUnauthorized},
		{"health is open", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics are open", http.MethodGet, "/metrics", "", http.StatusOK},
		{"preflight is open", http.MethodOptions, "/predict", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAuthMiddleware_QueryKeyAndDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthMiddleware("s3cret")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?api_key=s3cret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	AuthMiddleware("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		CORSMiddleware([]string{"*"})(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
	})

	t.Run("allow list", func(t *testing.T) {
		h := CORSMiddleware([]string{"https://app.example.com"})(okHandler)

		req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		CORSMiddleware([]string{"*"})(http.NotFoundHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRecoverMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	})
	rec := httptest.NewRecorder()

	RecoverMiddleware(logger.NewNop())(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal pipeline failure"}`, rec.Body.String())
}

func TestLoggingMiddleware_KeepsStatus(t *testing.T) {
	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()

	LoggingMiddleware(logger.NewNop())(teapot).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
