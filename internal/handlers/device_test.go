package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/presence"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/services"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/store"
	"dentalcam-backend/internal/vision"
)

type testEnv struct {
	router *gin.Engine
	queue  *queue.Queue
	store  *store.Store
}

// newTestEnv wires the pipeline against a stub vision proxy, with the
// client-facing routes mounted without session auth.
func newTestEnv(t *testing.T, visionURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	uploads, err := storage.New(t.TempDir())
	require.NoError(t, err)

	q := queue.New(300*time.Millisecond, 0)
	client := vision.NewClient(visionURL, 5*time.Second)
	orchestrator := services.NewOrchestrator(q, uploads, client, 1)

	tracker := presence.NewTracker(
		func() (time.Time, error) { ts, _ := q.LatestCompletion(); return ts, nil },
		func() (time.Time, error) { ts, _ := q.LatestUpload(); return ts, nil },
		st.LatestHeartbeat,
		300*time.Second,
		180*time.Second,
	)

	deviceHandler := NewDeviceHandler(st, q, uploads, orchestrator)
	captureHandler := NewCaptureHandler(q, uploads, orchestrator)
	statusHandler := NewStatusHandler(tracker)

	router := gin.New()
	router.POST("/heartbeat", deviceHandler.Heartbeat)
	router.POST("/device-connected", deviceHandler.DeviceConnected)
	router.GET("/check-requests", deviceHandler.CheckRequests)
	router.POST("/upload", deviceHandler.Upload)
	router.POST("/mark-complete", deviceHandler.MarkComplete)
	router.POST("/capture-only", captureHandler.CaptureOnly)
	router.GET("/get-latest-image", captureHandler.GetLatestImage)
	router.GET("/get-analysis", captureHandler.GetAnalysis)
	router.GET("/api/pi-status", statusHandler.PiStatus)

	return &testEnv{router: router, queue: q, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) uploadImage(t *testing.T, requestID, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)
	if requestID != "" {
		require.NoError(t, writer.WriteField("request_id", requestID))
	}
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func stubVisionServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
}

func TestCaptureLifecycleEndToEnd(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": [{"class": "caries-like", "confidence": 1.4, "box_2d": [1, 2, 3, 4]}]}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	// Client enqueues a capture.
	w := env.do(t, http.MethodPost, "/capture-only", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var captureResp models.CaptureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &captureResp))
	require.NotEmpty(t, captureResp.RequestID)

	// Device polls and sees it.
	w = env.do(t, http.MethodGet, "/check-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var poll struct {
		HasRequests bool `json:"has_requests"`
		Request     struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"request"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
	require.True(t, poll.HasRequests)
	assert.Equal(t, captureResp.RequestID, poll.Request.ID)
	assert.Equal(t, "pending", poll.Request.Status)

	// Device uploads the image correlated to the request.
	w = env.uploadImage(t, captureResp.RequestID, "capture_001.jpg")
	require.Equal(t, http.StatusOK, w.Code)

	// Device marks complete, which triggers grace wait + analysis.
	body, _ := json.Marshal(models.MarkCompleteRequest{RequestID: captureResp.RequestID})
	w = env.do(t, http.MethodPost, "/mark-complete", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The normalized analysis is retrievable.
	w = env.do(t, http.MethodGet, "/get-analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var analysisResp struct {
		Status string `json:"status"`
		Data   struct {
			Filename string                 `json:"filename"`
			Analysis *models.AnalysisResult `json:"analysis"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysisResp))
	require.NotNil(t, analysisResp.Data.Analysis)
	assert.Equal(t, "capture_001.jpg", analysisResp.Data.Filename)
	assert.Equal(t, map[string]int{"caries": 1}, analysisResp.Data.Analysis.DetectionCounts)
	assert.Equal(t, map[string]float64{"caries": 100}, analysisResp.Data.Analysis.Confidences)
	assert.Equal(t, models.StatusAttentionNeeded, analysisResp.Data.Analysis.Status)

	// Latest image resolves through the request record.
	w = env.do(t, http.MethodGet, "/get-latest-image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var latest models.LatestImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &latest))
	assert.Equal(t, "success", latest.Status)
	assert.Equal(t, "capture_001.jpg", latest.Filename)
	assert.Equal(t, captureResp.RequestID, latest.RequestID)
}

func TestMarkCompleteBeforeUpload(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.do(t, http.MethodPost, "/capture-only", nil)
	var captureResp models.CaptureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &captureResp))

	body, _ := json.Marshal(models.MarkCompleteRequest{RequestID: captureResp.RequestID})
	w = env.do(t, http.MethodPost, "/mark-complete", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "image_not_ready")

	// Upload lands late; a retried completion succeeds.
	require.Equal(t, http.StatusOK, env.uploadImage(t, captureResp.RequestID, "late.jpg").Code)
	w = env.do(t, http.MethodPost, "/mark-complete", body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMarkCompleteUnknownRequest(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	body, _ := json.Marshal(models.MarkCompleteRequest{RequestID: "no-such-request"})
	w := env.do(t, http.MethodPost, "/mark-complete", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "request_not_found")
}

func TestUploadUnknownRequest(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.uploadImage(t, "no-such-request", "orphan.jpg")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckRequestsEmpty(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.do(t, http.MethodGet, "/check-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_requests": false}`, w.Body.String())
}

func TestGetLatestImageWaiting(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.do(t, http.MethodGet, "/get-latest-image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.LatestImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "waiting", resp.Status)
}

func TestAnalysisFailureMarksRequestFailed(t *testing.T) {
	visionSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.do(t, http.MethodPost, "/capture-only", nil)
	var captureResp models.CaptureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &captureResp))
	require.Equal(t, http.StatusOK, env.uploadImage(t, captureResp.RequestID, "doomed.jpg").Code)

	body, _ := json.Marshal(models.MarkCompleteRequest{RequestID: captureResp.RequestID})
	w = env.do(t, http.MethodPost, "/mark-complete", body)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "analysis_unavailable")

	req, ok := env.queue.Get(captureResp.RequestID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusFailed, req.Status)
}

func TestHeartbeatDrivesPiStatus(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	w := env.do(t, http.MethodGet, "/api/pi-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.PiStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Connected, "no signals yet")

	hb, _ := json.Marshal(models.HeartbeatRequest{
		DeviceID:  "pi-01",
		Timestamp: time.Now().Format(time.RFC3339),
		Status:    "ok",
	})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/heartbeat", hb).Code)

	w = env.do(t, http.MethodGet, "/api/pi-status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Connected, "fresh heartbeat marks the device online")
}

func TestDeviceConnectedUpsert(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	env := newTestEnv(t, visionSrv.URL)

	payload, _ := json.Marshal(models.DeviceConnectedRequest{
		DeviceID:        "pi-01",
		IPAddress:       "192.168.1.42",
		ConnectionTime:  time.Now().Format(time.RFC3339),
		CameraAvailable: true,
	})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/device-connected", payload).Code)

	record, err := env.store.GetDevice("pi-01")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42", record.IPAddress)
	assert.True(t, record.CameraAvailable)
}
