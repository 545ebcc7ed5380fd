package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deepfakeserver/internal/config"
	"deepfakeserver/internal/logger"

	"github.com/google/uuid"
)

// ErrUnavailable means the upload directory cannot take new files.
var ErrUnavailable = errors.New("upload storage unavailable")

// Upload is a video written to the upload directory for the duration of one request.
type Upload struct {
	Path         string
	OriginalName string
	Size         int64
}

// UploadStore writes uploads under generated names and sweeps the ones left behind.
type UploadStore struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
	logger   *logger.Logger
}

// NewUploadStore creates an UploadStore rooted at the configured upload directory.
func NewUploadStore(config *config.Config, logger *logger.Logger) *UploadStore {
	return &UploadStore{
		dir:      config.UploadDirectory,
		ttl:      config.UploadTTL,
		interval: config.JanitorInterval,
		logger:   logger,
	}
}

// Dir is the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

// Save streams src into a new file named <uuid><ext>. The client's file name only
// contributes its extension. A partially written file is removed on error.
func (s *UploadStore) Save(src io.Reader, originalName string) (*Upload, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create upload directory: %v", ErrUnavailable, err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: create upload file: %v", ErrUnavailable, err)
	}

	size, err := io.Copy(file, src)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &Upload{Path: path, OriginalName: originalName, Size: size}, nil
}

// Remove deletes an upload. A file that is already gone is not an error.
func (s *UploadStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Error removing upload %s: %v", path, err)
	}
}

// Sweep removes uploads older than the TTL and returns how many were deleted.
func (s *UploadStore) Sweep(now time.Time) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Error reading upload directory: %v", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Error("Error removing stale upload %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Warning("Removed %d stale uploads", removed)
	}
	return removed
}

// Run starts a ticker loop that periodically sweeps stale uploads until ctx is done.
func (s *UploadStore) Run(ctx context.Context) {
	if s.interval <= 0 || s.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}
