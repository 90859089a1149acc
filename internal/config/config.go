package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string

	// Storage
	UploadDir    string
	DatabasePath string

	// Vision proxy
	VisionProxyURL   string
	VisionTimeout    time.Duration
	VisionMaxRetries int

	// Auth
	SessionSecret   string
	DeviceJWTSecret string

	// Presence / queue tuning
	HeartbeatWindow  time.Duration
	ActivityWindow   time.Duration
	CompletionGrace  time.Duration
	RetentionHorizon time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
		DatabasePath: getEnv("DATABASE_PATH", "dentalcam.db"),

		VisionProxyURL:   getEnv("VISION_PROXY_URL", ""),
		VisionTimeout:    getDuration("VISION_TIMEOUT", 30*time.Second),
		VisionMaxRetries: getInt("VISION_MAX_RETRIES", 3),

		SessionSecret:   getEnv("SESSION_SECRET", ""),
		DeviceJWTSecret: getEnv("DEVICE_JWT_SECRET", ""),

		HeartbeatWindow:  getDuration("HEARTBEAT_WINDOW", 180*time.Second),
		ActivityWindow:   getDuration("ACTIVITY_WINDOW", 300*time.Second),
		CompletionGrace:  getDuration("COMPLETION_GRACE", 1*time.Second),
		RetentionHorizon: getDuration("RETENTION_HORIZON", 24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.VisionProxyURL == "" {
		return fmt.Errorf("VISION_PROXY_URL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.VisionMaxRetries < 0 {
		return fmt.Errorf("VISION_MAX_RETRIES must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}
