// Package storage keeps captured images and their analysis sidecar records
// in a local directory.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/models"
)

// AnalysisRecord is the persisted per-capture record. RawDetections retains
// the unmodified upstream payload for audit alongside the normalized
// analysis.
type AnalysisRecord struct {
	Filename      string                 `json:"filename"`
	Timestamp     time.Time              `json:"timestamp"`
	RawDetections json.RawMessage        `json:"raw_detections"`
	Analysis      *models.AnalysisResult `json:"analysis"`
}

type Local struct {
	dir string
}

func New(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// SaveImage stores an uploaded image under its base name and returns the
// stored filename.
func (l *Local) SaveImage(filename string, r io.Reader) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", filename)
	}

	out, err := os.Create(filepath.Join(l.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return name, nil
}

func (l *Local) ReadImage(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.Base(filename)))
	if os.IsNotExist(err) {
		return nil, apperrors.NewNoImages()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

func (l *Local) ImageExists(filename string) bool {
	_, err := os.Stat(filepath.Join(l.dir, filepath.Base(filename)))
	return err == nil
}

// ImagePath returns the on-disk path for serving a stored image.
func (l *Local) ImagePath(filename string) string {
	return filepath.Join(l.dir, filepath.Base(filename))
}

// WriteAnalysisRecord persists the sidecar record next to its image.
func (l *Local) WriteAnalysisRecord(rec *AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis record: %w", err)
	}
	path := filepath.Join(l.dir, filepath.Base(rec.Filename)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write analysis record: %w", err)
	}
	return nil
}

func (l *Local) ReadAnalysisRecord(filename string) (*AnalysisRecord, error) {
	path := filepath.Join(l.dir, filepath.Base(filename)+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFound("no analysis results found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis record: %w", err)
	}

	var rec AnalysisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse analysis record: %w", err)
	}
	return &rec, nil
}
