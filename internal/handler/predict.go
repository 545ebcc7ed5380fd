package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/metrics"
	"deepfakeserver/internal/service"
	"deepfakeserver/internal/service/storage"

	"github.com/google/uuid"
)

// multipartOverhead is the room left for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

var (
	errNoFile        = errors.New("no video file in upload")
	errEmptyFilename = errors.New("uploaded file has an empty filename")
)

// Predictor runs the detection pipeline for a stored upload.
type Predictor interface {
	Predict(ctx context.Context, req service.Request) (*service.Report, error)
}

// PredictHandler accepts a multipart video upload and replies with the verdict.
func PredictHandler(predictor Predictor, uploads *storage.UploadStore, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, ok := predictUpload(w, r, predictor, uploads, cfg, logger)
		if !ok {
			return
		}
		writeJSON(w, logger, http.StatusOK, response)
	}
}

// AnalyzeHandler serves the web client: same flow as PredictHandler, with the label
// mirrored under "prediction".
func AnalyzeHandler(predictor Predictor, uploads *storage.UploadStore, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, ok := predictUpload(w, r, predictor, uploads, cfg, logger)
		if !ok {
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.AnalyzeResponse{
			PredictResponse: *response,
			Prediction:      response.Result,
		})
	}
}

// predictUpload stores the upload, runs the pipeline and removes the file again.
// On failure the error reply is already written and ok is false.
func predictUpload(w http.ResponseWriter, r *http.Request, predictor Predictor, uploads *storage.UploadStore,
	cfg *config.Config, logger *logger.Logger) (response *dto.PredictResponse, ok bool) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := logger.With("request_id", requestID)

	maxBytes := cfg.MaxUploadBytes()
	tooLarge := fmt.Sprintf("upload exceeds the %d MB limit", cfg.MaxUploadSizeMB)

	if r.ContentLength > maxBytes+multipartOverhead {
		reject(w, log, http.StatusRequestEntityTooLarge, "too_large", tooLarge, requestID)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	part, err := firstFilePart(r)
	if err != nil {
		if isTooLarge(err) {
			reject(w, log, http.StatusRequestEntityTooLarge, "too_large", tooLarge, requestID)
			return nil, false
		}
		reason := "missing_file"
		if errors.Is(err, errEmptyFilename) {
			reason = "empty_filename"
		}
		reject(w, log, http.StatusBadRequest, reason, err.Error(), requestID)
		return nil, false
	}
	defer part.Close()

	filename := part.FileName()
	if !cfg.IsAllowedExtension(filename) {
		msg := fmt.Sprintf("unsupported file format, allowed: %s", strings.Join(cfg.AllowedExtensions, ", "))
		reject(w, log, http.StatusBadRequest, "unsupported_format", msg, requestID)
		return nil, false
	}

	upload, err := uploads.Save(io.LimitReader(part, maxBytes+1), filename)
	if err != nil {
		switch {
		case isTooLarge(err):
			reject(w, log, http.StatusRequestEntityTooLarge, "too_large", tooLarge, requestID)
		case errors.Is(err, storage.ErrUnavailable):
			log.Error("Error storing upload: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "internal pipeline failure", requestID)
		default:
			reject(w, log, http.StatusBadRequest, "unreadable", "could not read uploaded file", requestID)
		}
		return nil, false
	}
	defer uploads.Remove(upload.Path)

	switch {
	case upload.Size > maxBytes:
		reject(w, log, http.StatusRequestEntityTooLarge, "too_large", tooLarge, requestID)
		return nil, false
	case upload.Size == 0:
		reject(w, log, http.StatusBadRequest, "empty_file", "uploaded file is empty", requestID)
		return nil, false
	}

	report, err := predictor.Predict(r.Context(), service.Request{
		RequestID: requestID,
		Path:      upload.Path,
		Filename:  filename,
		FileSize:  upload.Size,
	})
	if err != nil {
		status, msg := predictionStatus(err)
		writeError(w, logger, status, msg, requestID)
		return nil, false
	}

	return &dto.PredictResponse{
		Result:     report.Verdict.Label,
		Confidence: report.Verdict.Confidence,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}, true
}

// firstFilePart returns the first multipart part that carries a filename.
func firstFilePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected a multipart/form-data upload: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}

		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		filename, isFile := params["filename"]
		if err != nil || !isFile {
			part.Close()
			continue
		}
		if strings.TrimSpace(filename) == "" {
			part.Close()
			return nil, errEmptyFilename
		}
		return part, nil
	}
}

// predictionStatus maps a pipeline error to the HTTP status and message the client sees.
func predictionStatus(err error) (int, string) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, inputErr.Msg
	case errors.Is(err, service.ErrBusy):
		return http.StatusServiceUnavailable, "too many concurrent predictions, retry later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "prediction timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "request canceled"
	default:
		return http.StatusInternalServerError, "internal pipeline failure"
	}
}

func reject(w http.ResponseWriter, log *logger.Logger, status int, reason, msg, requestID string) {
	metrics.UploadsRejectedTotal.WithLabelValues(reason).Inc()
	log.Warning("Upload rejected (%s): %s", reason, msg)
	writeError(w, log, status, msg, requestID)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
