package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"dentalcam-backend/internal/config"
	"dentalcam-backend/internal/discovery"
	"dentalcam-backend/internal/handlers"
	"dentalcam-backend/internal/logger"
	"dentalcam-backend/internal/middleware"
	"dentalcam-backend/internal/presence"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/services"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/store"
	"dentalcam-backend/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}

	uploads, err := storage.New(cfg.UploadDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to prepare upload directory")
	}

	captureQueue := queue.New(cfg.CompletionGrace, cfg.RetentionHorizon)
	visionClient := vision.NewClient(cfg.VisionProxyURL, cfg.VisionTimeout)
	orchestrator := services.NewOrchestrator(captureQueue, uploads, visionClient, cfg.VisionMaxRetries)

	tracker := presence.NewTracker(
		func() (time.Time, error) { ts, _ := captureQueue.LatestCompletion(); return ts, nil },
		func() (time.Time, error) { ts, _ := captureQueue.LatestUpload(); return ts, nil },
		st.LatestHeartbeat,
		cfg.ActivityWindow,
		cfg.HeartbeatWindow,
	)

	deviceHandler := handlers.NewDeviceHandler(st, captureQueue, uploads, orchestrator)
	captureHandler := handlers.NewCaptureHandler(captureQueue, uploads, orchestrator)
	authHandler := handlers.NewAuthHandler(st)
	scansHandler := handlers.NewScansHandler(st, uploads)
	statusHandler := handlers.NewStatusHandler(tracker)
	discoveryHandler := handlers.NewDiscoveryHandler(discovery.NewScanner())

	router := gin.Default()

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
	})
	router.Use(sessions.Sessions("dentalcam_session", sessionStore))

	router.GET("/health-check", handlers.HealthHandler)

	// Device-facing endpoints. Auth is optional: older firmware revisions
	// send no token.
	device := router.Group("/")
	device.Use(middleware.DeviceAuth(cfg.DeviceJWTSecret))
	device.POST("/heartbeat", deviceHandler.Heartbeat)
	device.POST("/device-connected", deviceHandler.DeviceConnected)
	device.GET("/check-requests", deviceHandler.CheckRequests)
	device.POST("/upload", deviceHandler.Upload)
	device.POST("/mark-complete", deviceHandler.MarkComplete)

	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	// Client-facing endpoints behind the login session.
	client := router.Group("/")
	client.Use(middleware.AuthRequired())
	client.POST("/logout", authHandler.Logout)
	client.POST("/capture-only", captureHandler.CaptureOnly)
	client.GET("/get-latest-image", captureHandler.GetLatestImage)
	client.POST("/analyze-image", captureHandler.AnalyzeImage)
	client.GET("/get-analysis", captureHandler.GetAnalysis)
	client.POST("/save-scan", scansHandler.SaveScan)
	client.GET("/scans", scansHandler.ListScans)
	client.GET("/scans/:scan_id", scansHandler.GetScan)
	client.DELETE("/scans/:scan_id", scansHandler.DeleteScan)
	client.GET("/uploads/:filename", captureHandler.ServeUpload)
	client.GET("/api/pi-status", statusHandler.PiStatus)
	client.GET("/api/account", authHandler.GetAccount)
	client.POST("/api/update-profile", authHandler.UpdateProfile)
	client.POST("/api/change-password", authHandler.ChangePassword)
	client.POST("/api/get_device_ip", discoveryHandler.GetDeviceIP)

	logger.WithField("port", cfg.Port).Info("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}
