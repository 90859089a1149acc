package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/services"
	"dentalcam-backend/internal/storage"
)

// CaptureHandler covers the client-facing capture endpoints: enqueueing,
// latest-image lookup, explicit analysis and analysis retrieval.
type CaptureHandler struct {
	queue        *queue.Queue
	storage      *storage.Local
	orchestrator *services.Orchestrator
}

func NewCaptureHandler(q *queue.Queue, local *storage.Local, o *services.Orchestrator) *CaptureHandler {
	return &CaptureHandler{
		queue:        q,
		storage:      local,
		orchestrator: o,
	}
}

func (h *CaptureHandler) CaptureOnly(c *gin.Context) {
	req := h.queue.Enqueue()

	logger.WithField("request_id", req.ID).Info("capture request queued")
	c.JSON(http.StatusOK, models.CaptureResponse{
		Status:    "success",
		Message:   "Capture request queued",
		RequestID: req.ID,
	})
}

func (h *CaptureHandler) GetLatestImage(c *gin.Context) {
	req, err := h.queue.GetLatestCompleted()
	if err != nil {
		// Empty state is a "waiting" status, not an error: expected during
		// warm-up before the first capture completes.
		if errors.Is(err, apperrors.NewNoCompletedRequests()) {
			c.JSON(http.StatusOK, models.LatestImageResponse{
				Status:  "waiting",
				Message: "No completed captures yet",
			})
			return
		}
		respondError(c, err)
		return
	}

	if req.Filename == "" {
		respondError(c, apperrors.NewNoImages())
		return
	}

	c.JSON(http.StatusOK, models.LatestImageResponse{
		Status:    "success",
		Filename:  req.Filename,
		RequestID: req.ID,
	})
}

// AnalyzeImage analyzes an uploaded file, or falls back to the latest
// completed capture when the request carries no file.
func (h *CaptureHandler) AnalyzeImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		result, aerr := h.orchestrator.AnalyzeLatestCapture(c.Request.Context())
		if aerr != nil {
			respondError(c, aerr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"response": result})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read image", Message: err.Error()})
		return
	}

	// Keep the ad-hoc upload alongside device captures so it can be served
	// and saved as a scan afterwards.
	filename, err := h.storage.SaveImage(header.Filename, bytes.NewReader(image))
	if err != nil {
		logger.WithError(err).Error("failed to store uploaded image")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save image"})
		return
	}

	result, err := h.orchestrator.AnalyzeUpload(c.Request.Context(), filename, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": result})
}

func (h *CaptureHandler) GetAnalysis(c *gin.Context) {
	rec, err := h.orchestrator.LatestAnalysis()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   rec,
	})
}

// ServeUpload serves a stored image by filename.
func (h *CaptureHandler) ServeUpload(c *gin.Context) {
	filename := c.Param("filename")
	if !h.storage.ImageExists(filename) {
		respondError(c, apperrors.NewNoImages())
		return
	}
	c.File(h.storage.ImagePath(filename))
}
