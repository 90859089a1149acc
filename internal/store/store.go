// Package store persists users, scans, heartbeats and device records in
// sqlite. It covers the identity store and scan archive contracts plus the
// append-only signal log the presence tracker reads.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dentalcam-backend/internal/models"
)

type Store struct {
	db *gorm.DB
}

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrScanNotFound       = errors.New("scan not found")
)

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Scan{},
		&models.DeviceHeartbeat{},
		&models.DeviceRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// ----- identity store -----

func (s *Store) CreateUser(username, email, password string) (*models.User, error) {
	var existing models.User
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, ErrUsernameTaken
	}

	user := models.User{Username: username, Email: email}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (s *Store) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Store) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *Store) UpdateProfile(id uint, username, email string) error {
	result := s.db.Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"username": username, "email": email})
	if result.Error != nil {
		return fmt.Errorf("failed to update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) ChangePassword(id uint, currentPassword, newPassword string) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}
	if !user.CheckPassword(currentPassword) {
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.db.Save(user).Error
}

// ----- device signals -----

// RecordHeartbeat appends to the heartbeat log; history is never
// overwritten.
func (s *Store) RecordHeartbeat(deviceID string, timestamp time.Time, status string) error {
	hb := models.DeviceHeartbeat{
		DeviceID:  deviceID,
		Timestamp: timestamp,
		Status:    status,
	}
	return s.db.Create(&hb).Error
}

// LatestHeartbeat returns the most recent heartbeat timestamp. An empty log
// reports a zero time without error.
func (s *Store) LatestHeartbeat() (time.Time, error) {
	var hb models.DeviceHeartbeat
	err := s.db.Order("timestamp DESC").First(&hb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return hb.Timestamp, nil
}

// UpsertDevice keeps only the latest known network identity per device.
func (s *Store) UpsertDevice(record models.DeviceRecord) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		UpdateAll: true,
	}).Create(&record).Error
}

func (s *Store) GetDevice(deviceID string) (*models.DeviceRecord, error) {
	var record models.DeviceRecord
	if err := s.db.First(&record, "device_id = ?", deviceID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ----- scan archive -----

func (s *Store) SaveScan(userID uint, filename string, result *models.AnalysisResult) (string, error) {
	scan := models.Scan{
		ID:               uuid.NewString(),
		UserID:           userID,
		Timestamp:        time.Now(),
		OriginalFilename: filename,
	}
	if err := scan.SetAnalysis(result); err != nil {
		return "", fmt.Errorf("failed to serialize analysis: %w", err)
	}
	if err := s.db.Create(&scan).Error; err != nil {
		return "", fmt.Errorf("failed to save scan: %w", err)
	}
	return scan.ID, nil
}

func (s *Store) ListScans(userID uint) ([]models.Scan, error) {
	var scans []models.Scan
	if err := s.db.Where("user_id = ?", userID).Order("timestamp DESC").Find(&scans).Error; err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

func (s *Store) GetScan(userID uint, scanID string) (*models.Scan, error) {
	var scan models.Scan
	err := s.db.Where("user_id = ? AND id = ?", userID, scanID).First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *Store) DeleteScan(userID uint, scanID string) error {
	result := s.db.Where("user_id = ? AND id = ?", userID, scanID).Delete(&models.Scan{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete scan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScanNotFound
	}
	return nil
}
