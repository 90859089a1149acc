package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/middleware"
	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/store"
)

type AuthHandler struct {
	store *store.Store
}

func NewAuthHandler(s *store.Store) *AuthHandler {
	return &AuthHandler{store: s}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid registration payload", Message: err.Error()})
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "passwords do not match"})
		return
	}

	user, err := h.store.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "username already exists"})
			return
		}
		logger.WithError(err).Error("failed to register user")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to register user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Registration successful",
		"user_id": user.ID,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "username and password are required"})
		return
	}

	user, err := h.store.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid username or password"})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	if err := session.Save(); err != nil {
		logger.WithError(err).Error("failed to save session")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to establish session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged in successfully"})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out successfully"})
}

func (h *AuthHandler) GetAccount(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "user not found"})
		return
	}

	c.JSON(http.StatusOK, models.UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "username and email are required"})
		return
	}

	if err := h.store.UpdateProfile(userID, req.Username, req.Email); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "user not found"})
			return
		}
		logger.WithError(err).Error("failed to update profile")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Profile updated successfully"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "all password fields are required"})
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "new passwords do not match"})
		return
	}

	if err := h.store.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "current password is incorrect"})
			return
		}
		logger.WithError(err).Error("failed to change password")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to change password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Password changed successfully"})
}
