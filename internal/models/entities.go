package models

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username string `gorm:"unique"`
	Email    string
	Password string
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Scan is a saved analysis in a user's archive. Immutable once created
// except for deletion.
type Scan struct {
	ID               string `gorm:"primaryKey"`
	UserID           uint   `gorm:"index"`
	Timestamp        time.Time
	OriginalFilename string
	AnalysisJSON     string `gorm:"type:text"`
	CreatedAt        time.Time
}

func (s *Scan) SetAnalysis(a *AnalysisResult) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s.AnalysisJSON = string(data)
	return nil
}

func (s *Scan) Analysis() (*AnalysisResult, error) {
	var a AnalysisResult
	if err := json.Unmarshal([]byte(s.AnalysisJSON), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeviceHeartbeat rows are append-only; presence is always derived from the
// log, never stored as a flag.
type DeviceHeartbeat struct {
	ID        uint   `gorm:"primaryKey"`
	DeviceID  string `gorm:"index"`
	Timestamp time.Time
	Status    string
}

// DeviceRecord is the latest known network identity of a device, upserted on
// each connection announcement.
type DeviceRecord struct {
	DeviceID        string `gorm:"primaryKey"`
	IPAddress       string
	LastConnection  time.Time
	CameraAvailable bool
}
