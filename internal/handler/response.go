package handler

import (
	"encoding/json"
	"net/http"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/logger"
)

// writeJSON encodes payload with the given status code.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError replies with {"error": msg} and, when known, the request id.
func writeError(w http.ResponseWriter, logger *logger.Logger, status int, msg, requestID string) {
	writeJSON(w, logger, status, dto.ErrorResponse{Error: msg, RequestID: requestID})
}
