package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalcam-backend/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)

	user, err := s.CreateUser("alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", user.Password, "password is stored hashed")

	_, err = s.CreateUser("alice", "other@example.com", "x")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	got, err := s.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, s.UpdateProfile(user.ID, "alice2", "new@example.com"))
	updated, err := s.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)

	assert.ErrorIs(t, s.ChangePassword(user.ID, "wrong", "new"), ErrInvalidCredentials)
	require.NoError(t, s.ChangePassword(user.ID, "s3cret", "n3w-secret"))
	_, err = s.Authenticate("alice2", "n3w-secret")
	require.NoError(t, err)
}

func TestHeartbeatLogAppendOnly(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.LatestHeartbeat()
	require.NoError(t, err)
	assert.True(t, latest.IsZero(), "empty log reports zero time, not an error")

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Minute)
	require.NoError(t, s.RecordHeartbeat("pi-01", first, "ok"))
	require.NoError(t, s.RecordHeartbeat("pi-01", second, "ok"))

	latest, err = s.LatestHeartbeat()
	require.NoError(t, err)
	assert.True(t, latest.Equal(second))
}

func TestDeviceUpsertLatestWins(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertDevice(models.DeviceRecord{
		DeviceID:        "pi-01",
		IPAddress:       "192.168.1.20",
		LastConnection:  time.Now(),
		CameraAvailable: false,
	}))
	require.NoError(t, s.UpsertDevice(models.DeviceRecord{
		DeviceID:        "pi-01",
		IPAddress:       "192.168.1.42",
		LastConnection:  time.Now(),
		CameraAvailable: true,
	}))

	record, err := s.GetDevice("pi-01")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42", record.IPAddress)
	assert.True(t, record.CameraAvailable)
}

func TestScanArchive(t *testing.T) {
	s := newTestStore(t)

	user, err := s.CreateUser("bob", "bob@example.com", "pw")
	require.NoError(t, err)

	result := &models.AnalysisResult{
		DetectionCounts: map[string]int{"caries": 1},
		Confidences:     map[string]float64{"caries": 100},
		Status:          models.StatusAttentionNeeded,
		Recommendations: []string{"Schedule a dental checkup"},
	}

	id, err := s.SaveScan(user.ID, "capture.jpg", result)
	require.NoError(t, err)

	scans, err := s.ListScans(user.ID)
	require.NoError(t, err)
	require.Len(t, scans, 1)

	scan, err := s.GetScan(user.ID, id)
	require.NoError(t, err)
	restored, err := scan.Analysis()
	require.NoError(t, err)
	assert.Equal(t, models.StatusAttentionNeeded, restored.Status)
	assert.Equal(t, 1, restored.DetectionCounts["caries"])

	// Another user's archive is isolated.
	_, err = s.GetScan(user.ID+1, id)
	assert.ErrorIs(t, err, ErrScanNotFound)

	require.NoError(t, s.DeleteScan(user.ID, id))
	assert.ErrorIs(t, s.DeleteScan(user.ID, id), ErrScanNotFound)
}
