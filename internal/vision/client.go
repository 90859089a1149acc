// Package vision is the HTTP client for the image analysis proxy. The proxy
// wraps a vision model and answers {"response": ...} where the payload may
// arrive either as a JSON object or as a string of JSON that must be
// re-parsed.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"dentalcam-backend/internal/analysis"
	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/models"
)

type Client struct {
	proxyURL   string
	httpClient *http.Client
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

func NewClient(proxyURL string, timeout time.Duration) *Client {
	return &Client{
		proxyURL: proxyURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze sends the image as multipart form data and returns the normalized
// result alongside the raw upstream payload for audit storage.
func (c *Client) Analyze(ctx context.Context, filename string, image []byte) (*models.AnalysisResult, json.RawMessage, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, &body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// AnalyzeDataURI sends the image as a base64 data URI in a JSON body, the
// form the device completion path uses.
func (c *Client) AnalyzeDataURI(ctx context.Context, image []byte) (*models.AnalysisResult, json.RawMessage, error) {
	payload := map[string]string{
		"image_url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*models.AnalysisResult, json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperrors.NewAnalysisUnavailable("vision proxy unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apperrors.NewAnalysisUnavailable("failed to read vision proxy response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, apperrors.NewAnalysisUnavailable(
			fmt.Sprintf("vision proxy returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, apperrors.NewAnalysisUnavailable(string(body), err)
	}
	if env.Error != "" {
		return nil, nil, apperrors.NewAnalysisUnavailable(env.Error, nil)
	}
	if len(env.Response) == 0 {
		return nil, nil, apperrors.NewAnalysisUnavailable("vision proxy response missing payload", nil)
	}

	// The payload is either a JSON object or a string of (possibly fenced)
	// JSON that has to be parsed again.
	var text string
	if err := json.Unmarshal(env.Response, &text); err == nil {
		result, nerr := analysis.NormalizeText(text)
		return result, env.Response, nerr
	}

	result, nerr := analysis.Normalize(env.Response)
	return result, env.Response, nerr
}

// RetryWithBackoff runs fn up to maxRetries times with exponential backoff,
// stopping early when the context is cancelled.
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		backoff := backoffs[len(backoffs)-1]
		if i < len(backoffs) {
			backoff = backoffs[i]
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
