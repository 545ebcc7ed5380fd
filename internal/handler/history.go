package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/repository"
)

const (
	defaultPageSize = 24
	maxPageSize     = 200
)

// GetPredictionsHandler returns a filtered, paginated page of the prediction history.
func GetPredictionsHandler(predictionRepo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if predictionRepo == nil {
			writeError(w, logger, http.StatusServiceUnavailable, "prediction history is disabled", "")
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := min(atoiDefault(q.Get("limit"), defaultPageSize), maxPageSize)

		label := models.Label(strings.ToUpper(strings.TrimSpace(q.Get("label"))))
		if label != "" && !label.Valid() {
			writeError(w, logger, http.StatusBadRequest, "label must be REAL or FAKE", "")
			return
		}

		filter := &dto.PredictionFilters{
			Label:      label,
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		predictions, err := predictionRepo.GetAll(r.Context(), filter)
		if err != nil {
			logger.Error("Error querying predictions from database: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}

		totalCount, err := predictionRepo.GetTotalCount(r.Context(), filter)
		if err != nil {
			logger.Error("Error counting predictions: %v", err)
			totalCount = len(predictions)
		}

		if predictions == nil {
			predictions = []models.Prediction{}
		}
		writeJSON(w, logger, http.StatusOK, dto.PredictionsData{
			Predictions: predictions,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// GetPredictionHandler returns one stored prediction by its numeric id.
func GetPredictionHandler(predictionRepo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if predictionRepo == nil {
			writeError(w, logger, http.StatusServiceUnavailable, "prediction history is disabled", "")
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id < 1 {
			writeError(w, logger, http.StatusBadRequest, "invalid prediction id", "")
			return
		}

		prediction, err := predictionRepo.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, logger, http.StatusNotFound, "prediction not found", "")
			return
		}
		if err != nil {
			logger.Error("Error loading prediction %d: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}
		writeJSON(w, logger, http.StatusOK, prediction)
	}
}

// GetPredictionStatsHandler returns totals per label and averages.
func GetPredictionStatsHandler(predictionRepo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if predictionRepo == nil {
			writeError(w, logger, http.StatusServiceUnavailable, "prediction history is disabled", "")
			return
		}

		stats, err := predictionRepo.GetStats(r.Context())
		if err != nil {
			logger.Error("Error getting prediction stats: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// ClearPredictionsHandler deletes the whole prediction history.
func ClearPredictionsHandler(predictionRepo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if predictionRepo == nil {
			writeError(w, logger, http.StatusServiceUnavailable, "prediction history is disabled", "")
			return
		}

		if err := predictionRepo.DeleteAll(r.Context()); err != nil {
			logger.Error("Error clearing prediction history: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}

		logger.Info("Prediction history cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
