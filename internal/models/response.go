package models

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type CaptureResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type UploadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

type LatestImageResponse struct {
	Status    string `json:"status"`
	Filename  string `json:"filename,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type PiStatusResponse struct {
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

type SaveScanResponse struct {
	Status  string `json:"status"`
	ScanID  string `json:"scan_id,omitempty"`
	Message string `json:"message"`
}

type ScanSummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
}

// UserStats summarizes a user's archive for the dashboard.
type UserStats struct {
	TotalScans   int            `json:"total_scans"`
	LastScanAt   *time.Time     `json:"last_scan_at,omitempty"`
	StatusCounts map[string]int `json:"status_counts"`
}

type ScanListResponse struct {
	Scans           []ScanSummary `json:"scans"`
	Stats           UserStats     `json:"stats"`
	Recommendations []string      `json:"recommendations"`
}

type ScanDetailResponse struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Filename  string          `json:"filename"`
	Analysis  *AnalysisResult `json:"analysis"`
}

type UserResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type DeviceIPResponse struct {
	Status  string `json:"status"`
	IP      string `json:"ip,omitempty"`
	Message string `json:"message,omitempty"`
}
