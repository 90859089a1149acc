package models

type HeartbeatRequest struct {
	DeviceID  string `json:"device_id" binding:"required"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type DeviceConnectedRequest struct {
	DeviceID        string `json:"device_id" binding:"required"`
	IPAddress       string `json:"ip_address"`
	ConnectionTime  string `json:"connection_time"`
	CameraAvailable bool   `json:"camera_available"`
}

type MarkCompleteRequest struct {
	RequestID string `json:"request_id" binding:"required"`
}

type SaveScanRequest struct {
	Filename string          `json:"filename" binding:"required"`
	Analysis *AnalysisResult `json:"analysis" binding:"required"`
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type DeviceIPRequest struct {
	EspIP string `json:"espIp" binding:"required"`
}
