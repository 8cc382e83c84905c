package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is the normalized request sent to a reply-capable model.
// ImageBytes, when set, asks for a vision-grounded reply.
type Request struct {
	SessionKey string
	Prompt     string
	ImageBytes []byte
	ImageMIME  string
}

// Response is the model's final reply text.
type Response struct {
	Text string
}

// Adapter bridges the relay with one language/vision capability.
type Adapter interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode          string
	GeminiAPIKey  string
	GeminiModelID string
	OpenAIAPIKey  string
	OpenAIModelID string
}

// NewAdapter builds the configured adapter. In auto mode it prefers
// Gemini, then OpenAI; with no credential at all it returns nil, which
// callers treat as "no capability configured".
func NewAdapter(ctx context.Context, cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return NewGeminiAdapter(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		}
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIModelID), nil
		}
		return nil, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("gemini API key is required for gemini mode")
		}
		return NewGeminiAdapter(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIModelID), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("invalid brain mode: %q (expected auto|gemini|openai|mock)", cfg.Mode)
	}
}
