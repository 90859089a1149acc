package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/middleware"
	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/store"
)

// ScansHandler manages the user's saved scan archive.
type ScansHandler struct {
	store   *store.Store
	storage *storage.Local
}

func NewScansHandler(s *store.Store, local *storage.Local) *ScansHandler {
	return &ScansHandler{store: s, storage: local}
}

// SaveScan persists an analysis into the caller's archive. Saving is the
// explicit ownership handover: until then results belong to the request
// that produced them.
func (h *ScansHandler) SaveScan(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	var req models.SaveScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing required data", Message: err.Error()})
		return
	}

	if !h.storage.ImageExists(req.Filename) {
		respondError(c, apperrors.NewNotFound("image file not found"))
		return
	}

	scanID, err := h.store.SaveScan(userID, req.Filename, req.Analysis)
	if err != nil {
		logger.WithError(err).Error("failed to save scan")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save scan"})
		return
	}

	c.JSON(http.StatusOK, models.SaveScanResponse{
		Status:  "success",
		ScanID:  scanID,
		Message: "Scan saved successfully",
	})
}

// ListScans returns the archive summaries plus the dashboard aggregates:
// per-status counts and the most recent recommendations.
func (h *ScansHandler) ListScans(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	scans, err := h.store.ListScans(userID)
	if err != nil {
		logger.WithError(err).Error("failed to list scans")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list scans"})
		return
	}

	resp := models.ScanListResponse{
		Scans: make([]models.ScanSummary, 0, len(scans)),
		Stats: models.UserStats{
			TotalScans:   len(scans),
			StatusCounts: make(map[string]int),
		},
		Recommendations: []string{},
	}

	for i, scan := range scans {
		status := models.StatusUnknown
		if analysis, err := scan.Analysis(); err == nil {
			status = analysis.Status
			if len(resp.Recommendations) == 0 && len(analysis.Recommendations) > 0 {
				resp.Recommendations = analysis.Recommendations
			}
		}
		resp.Stats.StatusCounts[status]++
		if i == 0 {
			ts := scan.Timestamp
			resp.Stats.LastScanAt = &ts
		}
		resp.Scans = append(resp.Scans, models.ScanSummary{
			ID:        scan.ID,
			Timestamp: scan.Timestamp,
			Filename:  scan.OriginalFilename,
			Status:    status,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ScansHandler) GetScan(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	scan, err := h.store.GetScan(userID, c.Param("scan_id"))
	if err != nil {
		if errors.Is(err, store.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load scan"})
		return
	}

	analysis, err := scan.Analysis()
	if err != nil {
		logger.WithError(err).WithField("scan_id", scan.ID).Error("stored analysis is corrupt")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "stored analysis is corrupt"})
		return
	}

	c.JSON(http.StatusOK, models.ScanDetailResponse{
		ID:        scan.ID,
		Timestamp: scan.Timestamp,
		Filename:  scan.OriginalFilename,
		Analysis:  analysis,
	})
}

func (h *ScansHandler) DeleteScan(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	if err := h.store.DeleteScan(userID, c.Param("scan_id")); err != nil {
		if errors.Is(err, store.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to delete scan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Scan deleted successfully"})
}
