package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalcam-backend/internal/models"
	"dentalcam-backend/internal/queue"
	"dentalcam-backend/internal/services"
	"dentalcam-backend/internal/storage"
	"dentalcam-backend/internal/vision"
)

func newCaptureRouter(t *testing.T, visionURL string) (*gin.Engine, *storage.Local) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploads, err := storage.New(t.TempDir())
	require.NoError(t, err)

	q := queue.New(100*time.Millisecond, 0)
	client := vision.NewClient(visionURL, 5*time.Second)
	orchestrator := services.NewOrchestrator(q, uploads, client, 1)
	handler := NewCaptureHandler(q, uploads, orchestrator)

	router := gin.New()
	router.POST("/analyze-image", handler.AnalyzeImage)
	router.GET("/uploads/:filename", handler.ServeUpload)

	return router, uploads
}

func TestAnalyzeImageWithUpload(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": [{"class": "plaque", "confidence": 0.6, "box_2d": [1, 2, 3, 4]}]}}`)
	defer visionSrv.Close()
	router, uploads := newCaptureRouter(t, visionSrv.URL)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "adhoc.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-jpeg"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/analyze-image", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Response *models.AnalysisResult `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Response)
	assert.Equal(t, models.StatusNeedsImprovement, resp.Response.Status)
	assert.Equal(t, "adhoc.jpg", resp.Response.Filename)

	// The ad-hoc upload is stored so it can be served and saved.
	assert.True(t, uploads.ImageExists("adhoc.jpg"))
}

func TestAnalyzeImageFallbackNoCaptures(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	router, _ := newCaptureRouter(t, visionSrv.URL)

	req, _ := http.NewRequest(http.MethodPost, "/analyze-image", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Without a file and without completed captures the empty state
	// surfaces as a waiting-style response, not a server error.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no_completed_requests")
}

func TestServeUploadMissing(t *testing.T) {
	visionSrv := stubVisionServer(t, `{"response": {"predictions": []}}`)
	defer visionSrv.Close()
	router, _ := newCaptureRouter(t, visionSrv.URL)

	req, _ := http.NewRequest(http.MethodGet, "/uploads/nope.jpg", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
