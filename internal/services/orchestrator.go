// Package services coordinates the capture pipeline: completion signals
// from the device trigger image reads, vision calls and result persistence.
package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/vision"
)

type Orchestrator struct {
	queue      *queue.Queue
	storage    *storage.Local
	vision     *vision.Client
	maxRetries int

	mu     sync.Mutex
	latest *storage.AnalysisRecord
}

func NewOrchestrator(q *queue.Queue, store *storage.Local, client *vision.Client, maxRetries int) *Orchestrator {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Orchestrator{
		queue:      q,
		storage:    store,
		vision:     client,
		maxRetries: maxRetries,
	}
}

// HandleCompletion processes the device's completion signal: the queue
// transition (with its grace wait for the upload), then analysis of the
// stored image. Concurrent completions for the same request analyze at most
// once; the losers observe the final state idempotently.
func (o *Orchestrator) HandleCompletion(ctx context.Context, requestID string) error {
	req, err := o.queue.Complete(ctx, requestID)
	if err != nil {
		return err
	}
	if !o.queue.BeginAnalysis(req.ID) {
		return nil
	}
	return o.analyzeClaimed(ctx, req)
}

func (o *Orchestrator) analyzeClaimed(ctx context.Context, req queue.Request) error {
	image, err := o.storage.ReadImage(req.Filename)
	if err != nil {
		o.queue.FailAnalysis(req.ID, false)
		return err
	}

	var (
		result *models.AnalysisResult
		raw    json.RawMessage
	)
	err = vision.RetryWithBackoff(ctx, func() error {
		r, rw, aerr := o.vision.AnalyzeDataURI(ctx, image)
		if aerr != nil {
			return aerr
		}
		result, raw = r, rw
		return nil
	}, o.maxRetries)
	if err != nil {
		// Retry budget exhausted: the request is marked failed and the
		// caller can re-invoke analysis on the same stored image later.
		o.queue.FailAnalysis(req.ID, true)
		logger.WithFields(logrus.Fields{
			"request_id": req.ID,
			"filename":   req.Filename,
		}).WithError(err).Error("analysis failed after retries")
		return err
	}

	result.Filename = req.Filename
	o.queue.FinishAnalysis(req.ID, result)
	o.persistRecord(req.Filename, raw, result)

	logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"filename":   req.Filename,
		"status":     result.Status,
	}).Info("capture analyzed")
	return nil
}

// AnalyzeUpload runs an explicit analysis on caller-provided image bytes,
// outside the capture request lifecycle.
func (o *Orchestrator) AnalyzeUpload(ctx context.Context, filename string, image []byte) (*models.AnalysisResult, error) {
	var (
		result *models.AnalysisResult
		raw    json.RawMessage
	)
	err := vision.RetryWithBackoff(ctx, func() error {
		r, rw, aerr := o.vision.Analyze(ctx, filename, image)
		if aerr != nil {
			return aerr
		}
		result, raw = r, rw
		return nil
	}, o.maxRetries)
	if err != nil {
		return nil, err
	}

	result.Filename = filename
	o.persistRecord(filename, raw, result)
	return result, nil
}

// AnalyzeLatestCapture re-analyzes the latest completed capture, resolved
// through the request record's filename.
func (o *Orchestrator) AnalyzeLatestCapture(ctx context.Context) (*models.AnalysisResult, error) {
	req, err := o.queue.GetLatestCompleted()
	if err != nil {
		return nil, err
	}
	if req.Filename == "" {
		return nil, apperrors.NewNoImages()
	}
	image, err := o.storage.ReadImage(req.Filename)
	if err != nil {
		return nil, err
	}
	return o.AnalyzeUpload(ctx, req.Filename, image)
}

// LatestAnalysis returns the most recent analysis record, falling back to
// the sidecar of the latest completed capture after a restart.
func (o *Orchestrator) LatestAnalysis() (*storage.AnalysisRecord, error) {
	o.mu.Lock()
	latest := o.latest
	o.mu.Unlock()
	if latest != nil {
		return latest, nil
	}

	req, err := o.queue.GetLatestCompleted()
	if err != nil {
		return nil, apperrors.NewNotFound("no analysis results found")
	}
	if req.Filename == "" {
		return nil, apperrors.NewNotFound("no analysis results found")
	}
	return o.storage.ReadAnalysisRecord(req.Filename)
}

func (o *Orchestrator) persistRecord(filename string, raw json.RawMessage, result *models.AnalysisResult) {
	rec := &storage.AnalysisRecord{
		Filename:      filename,
		Timestamp:     time.Now(),
		RawDetections: raw,
		Analysis:      result,
	}
	if err := o.storage.WriteAnalysisRecord(rec); err != nil {
		logger.WithError(err).WithField("filename", filename).Error("failed to persist analysis record")
	}

	o.mu.Lock()
	o.latest = rec
	o.mu.Unlock()
}
