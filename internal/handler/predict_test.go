package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/logger"
	"deepfakeserver/internal/models"
	"deepfakeserver/internal/service"
	"deepfakeserver/internal/service/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	report *service.Report
	err    error

	calls    int
	req      service.Request
	content  []byte
	sawFile  bool
	readFail error
}

func (p *fakePredictor) Predict(_ context.Context, req service.Request) (*service.Report, error) {
	p.calls++
	p.req = req
	p.content, p.readFail = os.ReadFile(req.Path)
	p.sawFile = p.readFail == nil
	return p.report, p.err
}

func fakeVerdict() *service.Report {
	return &service.Report{
		Verdict:       models.Verdict{Label: models.LabelFake, Confidence: 87.5, FakeProbability: 0.875},
		FramesSampled: 60,
		FacesDetected: 55,
	}
}

type predictFixture struct {
	cfg     *config.Config
	uploads *storage.UploadStore
}

func newPredictFixture(t *testing.T) *predictFixture {
	t.Helper()
	cfg := &config.Config{
		UploadDirectory:   filepath.Join(t.TempDir(), "uploads"),
		MaxUploadSizeMB:   1,
		AllowedExtensions: []string{".mp4", ".avi"},
	}
	return &predictFixture{cfg: cfg, uploads: storage.NewUploadStore(cfg, logger.NewNop())}
}

func (f *predictFixture) serve(t *testing.T, h func(Predictor, *storage.UploadStore, *config.Config, *logger.Logger) http.HandlerFunc,
	p Predictor, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(p, f.uploads, f.cfg, logger.NewNop()).ServeHTTP(rec, req)
	return rec
}

func (f *predictFixture) assertNoUploadsLeft(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.cfg.UploadDirectory)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "upload directory should be empty after the request")
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "uploaded from test"))
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPredictHandler_Success(t *testing.T) {
	f := newPredictFixture(t)
	predictor := &fakePredictor{report: fakeVerdict()}
	body, contentType := multipartBody(t, "file", "clip.MP4", []byte("fake video bytes"))

	rec := f.serve(t, PredictHandler, predictor, body, contentType)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp dto.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.LabelFake, resp.Result)
	assert.Equal(t, 87.5, resp.Confidence)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, resp.Timestamp)

	require.True(t, predictor.sawFile, "upload must exist while the pipeline runs")
	assert.Equal(t, "fake video bytes", string(predictor.content))
	assert.Equal(t, "clip.MP4", predictor.req.Filename)
	assert.Equal(t, int64(len("fake video bytes")), predictor.req.FileSize)
	assert.Equal(t, ".mp4", filepath.Ext(predictor.req.Path))
	f.assertNoUploadsLeft(t)
}

func TestAnalyzeHandler_MirrorsPrediction(t *testing.T) {
	f := newPredictFixture(t)
	predictor := &fakePredictor{report: &service.Report{
		Verdict: models.Verdict{Label: models.LabelReal, Confidence: 64.1},
	}}
	body, contentType := multipartBody(t, "video", "selfie.avi", []byte("data"))

	rec := f.serve(t, AnalyzeHandler, predictor, body, contentType)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "REAL", resp["result"])
	assert.Equal(t, "REAL", resp["prediction"])
	assert.Equal(t, 64.1, resp["confidence"])
	f.assertNoUploadsLeft(t)
}

func TestPredictHandler_PipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"internal failure", errors.New("backbone exploded"), http.StatusInternalServerError, "internal pipeline failure"},
		{"unreadable video", service.NewInputError("video cannot be opened", errors.New("codec")), http.StatusBadRequest, "video cannot be opened"},
		{"busy", service.ErrBusy, http.StatusServiceUnavailable, "too many concurrent predictions, retry later"},
		{"timeout", fmt.Errorf("extract: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "prediction timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPredictFixture(t)
			predictor := &fakePredictor{err: tt.err}
			body, contentType := multipartBody(t, "file", "clip.mp4", []byte("bytes"))

			rec := f.serve(t, PredictHandler, predictor, body, contentType)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.message, resp.Error)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
			assert.True(t, predictor.sawFile)
			f.assertNoUploadsLeft(t)
		})
	}
}

func TestPredictHandler_RejectsBadUploads(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
		status   int
	}{
		{"no file part", "", "", nil, http.StatusBadRequest},
		{"empty filename", "file", "", []byte("data"), http.StatusBadRequest},
		{"unsupported extension", "file", "notes.txt", []byte("data"), http.StatusBadRequest},
		{"no extension", "file", "clip", []byte("data"), http.StatusBadRequest},
		{"empty file", "file", "clip.mp4", nil, http.StatusBadRequest},
		{"over the limit", "file", "clip.mp4", bytes.Repeat([]byte("x"), 1<<20+10), http.StatusRequestEntityTooLarge},
		{"far over the limit", "file", "clip.mp4", bytes.Repeat([]byte("x"), 3<<20), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPredictFixture(t)
			predictor := &fakePredictor{report: fakeVerdict()}
			body, contentType := multipartBody(t, tt.field, tt.filename, tt.content)

			rec := f.serve(t, PredictHandler, predictor, body, contentType)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeError(t, rec).Error)
			assert.Zero(t, predictor.calls, "pipeline must not run for a rejected upload")
			f.assertNoUploadsLeft(t)
		})
	}
}

func TestPredictHandler_NotMultipart(t *testing.T) {
	f := newPredictFixture(t)
	predictor := &fakePredictor{report: fakeVerdict()}

	rec := f.serve(t, PredictHandler, predictor, bytes.NewBufferString(`{"video":"x"}`), "application/json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, predictor.calls)
}

func TestPredictionStatus_CanceledByClient(t *testing.T) {
	status, _ := predictionStatus(context.Canceled)
	assert.Equal(t, http.StatusRequestTimeout, status)
}
