// Package avatar submits talking-head video renders to the D-ID API
// and polls them to completion.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Talk statuses reported by the render API. A talk moves through
// submitted and processing before landing on a terminal status.
const (
	StatusSubmitted  = "submitted"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

type Config struct {
	APIKey           string
	BaseURL          string
	DefaultSourceURL string
	VoiceID          string
	PollInterval     time.Duration
	MaxPollAttempts  int
	ScriptMaxChars   int
}

// Manager renders talking avatar videos. The sleep hook exists so
// tests can run the poll loop without waiting out real intervals.
type Manager struct {
	cfg    Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error

	// PollObserver, when set, is invoked once per status poll.
	PollObserver func()
}

func NewManager(cfg Config) *Manager {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.d-id.com"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "en-US-JennyNeural"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.ScriptMaxChars <= 0 {
		cfg.ScriptMaxChars = 300
	}
	return &Manager{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: sleepCtx,
	}
}

// Configured reports whether the manager holds a usable credential.
func (m *Manager) Configured() bool {
	return strings.TrimSpace(m.cfg.APIKey) != ""
}

// DefaultSourceURL is the portrait used when a session has not
// uploaded its own avatar image.
func (m *Manager) DefaultSourceURL() string {
	return m.cfg.DefaultSourceURL
}

// RequestTalkingVideo submits a render for the given portrait and
// script, polls until the render finishes, and returns the result
// video URL. Poll exhaustion and terminal render errors come back as
// errors with an empty URL.
func (m *Manager) RequestTalkingVideo(ctx context.Context, sourceURL, text string) (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("avatar provider not configured")
	}
	if strings.TrimSpace(sourceURL) == "" {
		sourceURL = m.cfg.DefaultSourceURL
	}
	if strings.TrimSpace(sourceURL) == "" {
		return "", fmt.Errorf("no avatar source image available")
	}

	talkID, err := m.submitTalk(ctx, sourceURL, truncateScript(text, m.cfg.ScriptMaxChars))
	if err != nil {
		return "", err
	}
	return m.pollTalk(ctx, talkID)
}

func (m *Manager) submitTalk(ctx context.Context, sourceURL, script string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"source_url": sourceURL,
		"script": map[string]any{
			"type":  "text",
			"input": script,
			"provider": map[string]any{
				"type":     "microsoft",
				"voice_id": m.cfg.VoiceID,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal talk request: %w", err)
	}

	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/talks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create talk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+m.cfg.APIKey)

	res, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit talk: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("submit talk status %d: %s", res.StatusCode, string(detail))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode talk response: %w", err)
	}
	if strings.TrimSpace(parsed.ID) == "" {
		return "", fmt.Errorf("talk response carries no id")
	}
	return parsed.ID, nil
}

func (m *Manager) pollTalk(ctx context.Context, talkID string) (string, error) {
	for attempt := 0; attempt < m.cfg.MaxPollAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
				return "", err
			}
		}

		if m.PollObserver != nil {
			m.PollObserver()
		}
		status, resultURL, err := m.fetchTalk(ctx, talkID)
		if err != nil {
			return "", err
		}
		switch status {
		case StatusDone:
			if strings.TrimSpace(resultURL) == "" {
				return "", fmt.Errorf("talk %s finished without a result url", talkID)
			}
			return resultURL, nil
		case StatusError:
			return "", fmt.Errorf("talk %s failed during rendering", talkID)
		case StatusSubmitted, StatusProcessing:
			// keep polling
		default:
			return "", fmt.Errorf("talk %s reported unknown status %q", talkID, status)
		}
	}
	return "", fmt.Errorf("talk %s still rendering after %d polls", talkID, m.cfg.MaxPollAttempts)
}

func (m *Manager) fetchTalk(ctx context.Context, talkID string) (status, resultURL string, err error) {
	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/talks/" + url.PathEscape(talkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+m.cfg.APIKey)

	res, err := m.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("poll talk: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", "", fmt.Errorf("poll talk status %d: %s", res.StatusCode, string(detail))
	}

	var parsed struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("decode poll response: %w", err)
	}
	return parsed.Status, parsed.ResultURL, nil
}

func truncateScript(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
