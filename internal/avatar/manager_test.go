package avatar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestManager(t *testing.T, baseURL string, maxPolls int) *Manager {
	t.Helper()
	m := NewManager(Config{
		APIKey:           "key:secret",
		BaseURL:          baseURL,
		DefaultSourceURL: "https://cdn.example.com/alice.jpg",
		MaxPollAttempts:  maxPolls,
	})
	m.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return m
}

func TestRequestTalkingVideoPollsUntilDone(t *testing.T) {
	polls := 0
	var submitted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic key:secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/talks":
			_ = json.NewDecoder(r.Body).Decode(&submitted)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tlk-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/talks/tlk-1":
			polls++
			body := map[string]string{"status": StatusProcessing}
			if polls >= 3 {
				body = map[string]string{
					"status":     StatusDone,
					"result_url": "https://videos.example.com/tlk-1.mp4",
				}
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, 10)
	resultURL, err := m.RequestTalkingVideo(context.Background(), "https://cdn.example.com/me.png", "hello")
	if err != nil {
		t.Fatalf("RequestTalkingVideo() error = %v", err)
	}
	if resultURL != "https://videos.example.com/tlk-1.mp4" {
		t.Fatalf("resultURL = %q", resultURL)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if submitted["source_url"] != "https://cdn.example.com/me.png" {
		t.Fatalf("source_url = %v", submitted["source_url"])
	}
	script, ok := submitted["script"].(map[string]any)
	if !ok || script["type"] != "text" || script["input"] != "hello" {
		t.Fatalf("script = %v", submitted["script"])
	}
	provider, ok := script["provider"].(map[string]any)
	if !ok || provider["type"] != "microsoft" || provider["voice_id"] != "en-US-JennyNeural" {
		t.Fatalf("provider = %v", script["provider"])
	}
}

func TestRequestTalkingVideoPollExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tlk-2"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": StatusProcessing})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, 4)
	resultURL, err := m.RequestTalkingVideo(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("RequestTalkingVideo() error = nil, want poll exhaustion")
	}
	if resultURL != "" {
		t.Fatalf("resultURL = %q, want empty", resultURL)
	}
	if !strings.Contains(err.Error(), "4 polls") {
		t.Fatalf("error = %v, want poll count in message", err)
	}
}

func TestRequestTalkingVideoRenderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tlk-3"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": StatusError})
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, 10)
	if _, err := m.RequestTalkingVideo(context.Background(), "", "hello"); err == nil {
		t.Fatal("RequestTalkingVideo() error = nil, want terminal render error")
	}
}

func TestRequestTalkingVideoSubmissionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad source image", http.StatusBadRequest)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, 10)
	resultURL, err := m.RequestTalkingVideo(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("RequestTalkingVideo() error = nil, want submission failure")
	}
	if resultURL != "" {
		t.Fatalf("resultURL = %q, want empty", resultURL)
	}
}

func TestRequestTalkingVideoCancelledDuringPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tlk-4"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": StatusProcessing})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	m := newTestManager(t, server.URL, 10)
	m.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	if _, err := m.RequestTalkingVideo(ctx, "", "hello"); err == nil {
		t.Fatal("RequestTalkingVideo() error = nil, want cancellation")
	}
}

func TestRequestTalkingVideoUnconfigured(t *testing.T) {
	m := NewManager(Config{})
	if m.Configured() {
		t.Fatal("Configured() = true for empty api key")
	}
	if _, err := m.RequestTalkingVideo(context.Background(), "", "hello"); err == nil {
		t.Fatal("RequestTalkingVideo() error = nil, want unconfigured error")
	}
}

func TestTruncateScript(t *testing.T) {
	long := strings.Repeat("a", 350)
	if got := truncateScript(long, 300); utf8.RuneCountInString(got) != 300 {
		t.Fatalf("truncated length = %d, want 300", utf8.RuneCountInString(got))
	}
	if got := truncateScript("short", 300); got != "short" {
		t.Fatalf("truncateScript(short) = %q", got)
	}
}
