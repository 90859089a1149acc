package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/discovery"
	"dentalcam-backend/internal/models"
)

type DiscoveryHandler struct {
	scanner *discovery.Scanner
}

func NewDiscoveryHandler(scanner *discovery.Scanner) *DiscoveryHandler {
	return &DiscoveryHandler{scanner: scanner}
}

// GetDeviceIP resolves the device's LAN address after it switches from its
// setup access point to the local network. Best effort: failure to locate
// the device is a warning, not an error.
func (h *DiscoveryHandler) GetDeviceIP(c *gin.Context) {
	var req models.DeviceIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "no device IP provided"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	ip, err := h.scanner.FindDevice(ctx, req.EspIP)
	if err != nil {
		c.JSON(http.StatusOK, models.DeviceIPResponse{
			Status:  "warning",
			Message: "Could not automatically detect the device. Please check your router's connected devices.",
		})
		return
	}

	c.JSON(http.StatusOK, models.DeviceIPResponse{
		Status: "success",
		IP:     ip,
	})
}
