package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/models"
)

// respondError maps pipeline errors onto HTTP responses, keeping the kind
// and message visible to the caller.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode, models.ErrorResponse{
			Error:   string(appErr.Kind),
			Message: appErr.Message,
		})
		return
	}
	c.JSON(apperrors.StatusOf(err), models.ErrorResponse{
		Error:   "internal",
		Message: err.Error(),
	})
}
