package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader carries the shared key on protected requests.
const APIKeyHeader = "X-API-Key"

// AuthMiddleware requires the configured API key on prediction, history and log endpoints.
// An empty key disables the check.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Probes, metrics and preflight requests stay open
			if !protectedPath(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				// Browsers cannot set headers on a WebSocket handshake
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing or invalid API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func protectedPath(path string) bool {
	return path == "/predict" ||
		strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/logs/")
}
