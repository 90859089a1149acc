package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/presence"
)

type StatusHandler struct {
	tracker *presence.Tracker
}

func NewStatusHandler(tracker *presence.Tracker) *StatusHandler {
	return &StatusHandler{tracker: tracker}
}

// PiStatus reports the inferred device connectivity. The query never fails:
// broken signal sources degrade to "disconnected".
func (h *StatusHandler) PiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, models.PiStatusResponse{
		Connected: h.tracker.Connected(),
		Timestamp: time.Now(),
	})
}
