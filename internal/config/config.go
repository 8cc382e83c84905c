package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the video-call relay service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	BrainProvider string
	GeminiAPIKey  string
	GeminiModelID string
	OpenAIAPIKey  string
	OpenAIModelID string
	HistoryWindow int

	ElevenLabsAPIKey     string
	ElevenLabsBaseURL    string
	ElevenLabsTTSModelID string
	SpeechDefaultEngine  string
	GTTSBaseURL          string
	GTTSLanguage         string

	DIDAPIKey           string
	DIDBaseURL          string
	DIDDefaultSourceURL string
	DIDVoiceID          string
	AvatarPollInterval  time.Duration
	AvatarMaxAttempts   int
	AvatarScriptMaxLen  int

	UploadDir      string
	UploadMaxBytes int64
	ImgBBAPIKey    string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "miravoz"),
		AllowAnyOrigin:   false,

		BrainProvider: envOrDefault("BRAIN_PROVIDER", "auto"),
		GeminiAPIKey:  stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModelID: envOrDefault("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModelID: envOrDefault("OPENAI_MODEL_ID", "gpt-4o-mini"),
		HistoryWindow: 6,

		ElevenLabsAPIKey:     stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:    envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsTTSModelID: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_monolingual_v1"),
		SpeechDefaultEngine:  envOrDefault("SPEECH_DEFAULT_ENGINE", "gtts"),
		GTTSBaseURL:          envOrDefault("GTTS_BASE_URL", "https://translate.google.com"),
		GTTSLanguage:         envOrDefault("GTTS_LANGUAGE", "en"),

		DIDAPIKey:  stringsTrimSpace("DID_API_KEY"),
		DIDBaseURL: envOrDefault("DID_BASE_URL", "https://api.d-id.com"),
		// Public sample face the provider accepts when no avatar was uploaded.
		DIDDefaultSourceURL: envOrDefault("DID_DEFAULT_SOURCE_URL", "https://d-id-public-bucket.s3.amazonaws.com/alice.jpg"),
		DIDVoiceID:          envOrDefault("DID_VOICE_ID", "en-US-JennyNeural"),
		AvatarPollInterval:  2 * time.Second,
		AvatarMaxAttempts:   30,
		AvatarScriptMaxLen:  300,

		UploadDir:      envOrDefault("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: 10 << 20,
		ImgBBAPIKey:    stringsTrimSpace("IMGBB_API_KEY"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AvatarPollInterval, err = durationFromEnv("AVATAR_POLL_INTERVAL", cfg.AvatarPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AvatarMaxAttempts, err = intFromEnv("AVATAR_POLL_MAX_ATTEMPTS", cfg.AvatarMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.AvatarScriptMaxLen, err = intFromEnv("AVATAR_SCRIPT_MAX_CHARS", cfg.AvatarScriptMaxLen)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("BRAIN_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadMaxBytes, err = int64FromEnv("UPLOAD_MAX_BYTES", cfg.UploadMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.AvatarPollInterval <= 0 {
		return Config{}, fmt.Errorf("AVATAR_POLL_INTERVAL must be positive")
	}
	if cfg.AvatarMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("AVATAR_POLL_MAX_ATTEMPTS must be positive")
	}
	if cfg.AvatarScriptMaxLen <= 0 {
		return Config{}, fmt.Errorf("AVATAR_SCRIPT_MAX_CHARS must be positive")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("BRAIN_HISTORY_WINDOW must be positive")
	}
	if cfg.UploadMaxBytes <= 0 {
		return Config{}, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.SpeechDefaultEngine)) {
	case "gtts", "openai":
	default:
		return Config{}, fmt.Errorf("SPEECH_DEFAULT_ENGINE must be gtts or openai, got %q", cfg.SpeechDefaultEngine)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
