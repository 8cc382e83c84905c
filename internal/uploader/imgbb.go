// Package uploader publishes locally stored avatar images to a host
// the avatar render provider can fetch from.
package uploader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gmercuri/miravoz/internal/reliability"
)

const (
	maxUploadAttempts = 3
	backoffBase       = 500 * time.Millisecond
	backoffCap        = 5 * time.Second
)

// ImgBBUploader pushes image files to the ImgBB hosting API. An
// uploader without an API key is valid and reports no public URL,
// which keeps image hosting optional.
type ImgBBUploader struct {
	apiKey  string
	baseURL string
	client  *http.Client
	backoff time.Duration
}

func NewImgBBUploader(apiKey, baseURL string) *ImgBBUploader {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.imgbb.com"
	}
	return &ImgBBUploader{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: backoffBase,
	}
}

// Configured reports whether uploads can actually be published.
func (u *ImgBBUploader) Configured() bool {
	return strings.TrimSpace(u.apiKey) != ""
}

// PublicURL uploads the file at path and returns its hosted URL.
// An unconfigured uploader returns an empty URL and no error so
// callers can fall back to serving the file themselves.
func (u *ImgBBUploader) PublicURL(ctx context.Context, path string) (string, error) {
	if !u.Configured() {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	var lastErr error
	for attempt := 0; attempt < maxUploadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, u.backoff, backoffCap)):
			}
		}

		hostedURL, retryable, err := u.upload(ctx, encoded)
		if err == nil {
			return hostedURL, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("imgbb upload failed after %d attempts: %w", maxUploadAttempts, lastErr)
}

func (u *ImgBBUploader) upload(ctx context.Context, encoded string) (hostedURL string, retryable bool, err error) {
	form := url.Values{}
	form.Set("key", u.apiKey)
	form.Set("image", encoded)

	endpoint := strings.TrimRight(u.baseURL, "/") + "/1/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := u.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("send upload: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("imgbb status %d: %s", res.StatusCode, string(detail))
	}

	var parsed struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decode upload response: %w", err)
	}
	if !parsed.Success || strings.TrimSpace(parsed.Data.URL) == "" {
		return "", false, fmt.Errorf("imgbb rejected the upload")
	}
	return parsed.Data.URL, false, nil
}
