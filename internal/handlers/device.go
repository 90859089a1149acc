package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/services"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/store"
)

// DeviceHandler covers the endpoints the capture device calls: heartbeats,
// connection announcements, request polling, uploads and completion.
type DeviceHandler struct {
	store        *store.Store
	queue        *queue.Queue
	storage      *storage.Local
	orchestrator *services.Orchestrator
}

func NewDeviceHandler(s *store.Store, q *queue.Queue, local *storage.Local, o *services.Orchestrator) *DeviceHandler {
	return &DeviceHandler{
		store:        s,
		queue:        q,
		storage:      local,
		orchestrator: o,
	}
}

func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid heartbeat payload", Message: err.Error()})
		return
	}

	timestamp := parseTimestamp(req.Timestamp)
	if err := h.store.RecordHeartbeat(req.DeviceID, timestamp, req.Status); err != nil {
		logger.WithError(err).Error("failed to record heartbeat")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to record heartbeat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *DeviceHandler) DeviceConnected(c *gin.Context) {
	var req models.DeviceConnectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid device payload", Message: err.Error()})
		return
	}

	record := models.DeviceRecord{
		DeviceID:        req.DeviceID,
		IPAddress:       req.IPAddress,
		LastConnection:  parseTimestamp(req.ConnectionTime),
		CameraAvailable: req.CameraAvailable,
	}
	if err := h.store.UpsertDevice(record); err != nil {
		logger.WithError(err).Error("failed to upsert device record")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to store device record"})
		return
	}

	logger.WithFields(logrus.Fields{
		"device_id": req.DeviceID,
		"ip":        req.IPAddress,
		"camera":    req.CameraAvailable,
	}).Info("device connected")
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CheckRequests is the device's polling endpoint. It answers immediately:
// either the oldest pending request or "no work".
func (h *DeviceHandler) CheckRequests(c *gin.Context) {
	req, ok := h.queue.Poll()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"has_requests": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"has_requests": true,
		"request":      req,
	})
}

// Upload stores the captured image and correlates it to its request. The
// request's status is untouched; completion arrives as a separate call.
func (h *DeviceHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "no image provided", Message: err.Error()})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "no image selected"})
		return
	}

	filename, err := h.storage.SaveImage(header.Filename, file)
	if err != nil {
		logger.WithError(err).Error("failed to save uploaded image")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save image"})
		return
	}

	if requestID := c.PostForm("request_id"); requestID != "" {
		if err := h.queue.Upload(requestID, filename); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, models.UploadResponse{
		Status:   "success",
		Message:  "Image uploaded successfully",
		Filename: filename,
	})
}

// MarkComplete transitions the request and triggers analysis. ImageNotReady
// tells the device the upload has not landed yet; the request stays
// completed and analysis is retried on a later call.
func (h *DeviceHandler) MarkComplete(c *gin.Context) {
	var req models.MarkCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid completion payload", Message: err.Error()})
		return
	}

	if err := h.orchestrator.HandleCompletion(c.Request.Context(), req.RequestID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// parseTimestamp accepts the device's RFC 3339 timestamps and falls back to
// the server clock for firmware that sends none.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return ts
	}
	return time.Now()
}
