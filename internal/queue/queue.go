// Package queue holds the capture request lifecycle shared between web
// clients that enqueue captures and the camera device that polls for them.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/models"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request is one capture-and-analyze cycle. Status only moves forward:
// pending -> completed -> failed. Analysis is attached to a completed
// request once the vision result lands.
type Request struct {
	ID          string                 `json:"id"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"timestamp"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	UploadedAt  *time.Time             `json:"-"`
	Filename    string                 `json:"filename,omitempty"`
	Analysis    *models.AnalysisResult `json:"-"`

	seq       uint64
	analyzing bool
}

// Queue owns every capture request behind one mutex. The grace wait in
// Complete never runs while the lock is held, so polls and enqueues from
// unrelated requests are never blocked by a completion in flight.
type Queue struct {
	mu       sync.Mutex
	requests []*Request
	byID     map[string]*Request
	seq      uint64

	grace   time.Duration
	horizon time.Duration
	now     func() time.Time
}

// graceStep bounds how long the filename re-check inside Complete sleeps
// between lock acquisitions.
const graceStep = 50 * time.Millisecond

// New creates a queue. grace is the bounded wait for an in-flight upload
// during Complete; horizon evicts terminal requests, <= 0 retains forever.
func New(grace, horizon time.Duration) *Queue {
	return &Queue{
		byID:    make(map[string]*Request),
		grace:   grace,
		horizon: horizon,
		now:     time.Now,
	}
}

// Enqueue creates a pending request visible to the next device poll.
func (q *Queue) Enqueue() Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictLocked(q.now())

	q.seq++
	req := &Request{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: q.now(),
		seq:       q.seq,
	}
	q.requests = append(q.requests, req)
	q.byID[req.ID] = req
	return *req
}

// Poll returns the oldest pending request without claiming it. The request
// stays pending until Complete, so a device that polls again before
// completing sees it redelivered.
func (q *Queue) Poll() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, req := range q.requests {
		if req.Status == StatusPending {
			return *req, true
		}
	}
	return Request{}, false
}

// Upload attaches the stored image's filename to its request. Completion is
// a separate step; upload and completion arrive as independent device calls
// and may race.
func (q *Queue) Upload(id, filename string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.byID[id]
	if !ok {
		return apperrors.NewRequestNotFound(id)
	}
	if req.Filename != "" {
		if req.Filename == filename {
			return nil
		}
		return apperrors.NewValidationError("request already has an uploaded image", nil)
	}
	now := q.now()
	req.Filename = filename
	req.UploadedAt = &now
	return nil
}

// Complete moves a pending request to completed, stamping completed_at
// exactly once. It then waits up to the grace period for the uploaded
// filename to land, re-checking in bounded steps without holding the lock.
// Re-completing is idempotent. If no filename arrives the request stays
// completed and ImageNotReady is returned; the caller retries later.
func (q *Queue) Complete(ctx context.Context, id string) (Request, error) {
	q.mu.Lock()
	req, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return Request{}, apperrors.NewRequestNotFound(id)
	}
	if req.Status == StatusPending {
		now := q.now()
		req.Status = StatusCompleted
		req.CompletedAt = &now
	}
	snapshot := *req
	q.mu.Unlock()

	if snapshot.Status == StatusFailed {
		return snapshot, nil
	}
	if snapshot.Filename != "" {
		return snapshot, nil
	}

	deadline := time.Now().Add(q.grace)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return snapshot, apperrors.NewImageNotReady(id)
		case <-time.After(graceStep):
		}

		q.mu.Lock()
		snapshot = *req
		q.mu.Unlock()
		if snapshot.Filename != "" {
			return snapshot, nil
		}
	}
	return snapshot, apperrors.NewImageNotReady(id)
}

// BeginAnalysis claims the request for analysis. It returns false when the
// request is not completed with an image, is already analyzed, or has an
// analysis in flight, so at most one analysis runs per request at a time.
func (q *Queue) BeginAnalysis(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.byID[id]
	if !ok {
		return false
	}
	if req.Status != StatusCompleted || req.Filename == "" {
		return false
	}
	if req.Analysis != nil || req.analyzing {
		return false
	}
	req.analyzing = true
	return true
}

// FinishAnalysis records the normalized result for a claimed request.
func (q *Queue) FinishAnalysis(id string, result *models.AnalysisResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if req, ok := q.byID[id]; ok {
		req.Analysis = result
		req.analyzing = false
	}
}

// FailAnalysis releases the claim. When terminal is true the retry budget is
// exhausted and the request is marked failed.
func (q *Queue) FailAnalysis(id string, terminal bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if req, ok := q.byID[id]; ok {
		req.analyzing = false
		if terminal {
			req.Status = StatusFailed
		}
	}
}

// Get returns a snapshot of a request by id.
func (q *Queue) Get(id string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.byID[id]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// GetLatestCompleted returns the completed request with the greatest
// completed_at. Equal timestamps break by insertion order so the selection
// is deterministic.
func (q *Queue) GetLatestCompleted() (Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var latest *Request
	for _, req := range q.requests {
		if req.Status != StatusCompleted || req.CompletedAt == nil {
			continue
		}
		if latest == nil ||
			req.CompletedAt.After(*latest.CompletedAt) ||
			(req.CompletedAt.Equal(*latest.CompletedAt) && req.seq > latest.seq) {
			latest = req
		}
	}
	if latest == nil {
		return Request{}, apperrors.NewNoCompletedRequests()
	}
	return *latest, nil
}

// LatestCompletion reports the most recent completion timestamp, a presence
// signal for the tracker.
func (q *Queue) LatestCompletion() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var latest time.Time
	found := false
	for _, req := range q.requests {
		if req.CompletedAt != nil && req.CompletedAt.After(latest) {
			latest = *req.CompletedAt
			found = true
		}
	}
	return latest, found
}

// LatestUpload reports the most recent upload timestamp across requests.
func (q *Queue) LatestUpload() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var latest time.Time
	found := false
	for _, req := range q.requests {
		if req.UploadedAt != nil && req.UploadedAt.After(latest) {
			latest = *req.UploadedAt
			found = true
		}
	}
	return latest, found
}

// evictLocked drops terminal requests older than the retention horizon.
// Pending requests are never evicted.
func (q *Queue) evictLocked(now time.Time) {
	if q.horizon <= 0 {
		return
	}
	cutoff := now.Add(-q.horizon)
	kept := q.requests[:0]
	for _, req := range q.requests {
		terminal := req.Status == StatusCompleted || req.Status == StatusFailed
		age := req.CreatedAt
		if req.CompletedAt != nil {
			age = *req.CompletedAt
		}
		if terminal && age.Before(cutoff) {
			delete(q.byID, req.ID)
			continue
		}
		kept = append(kept, req)
	}
	q.requests = kept
}
