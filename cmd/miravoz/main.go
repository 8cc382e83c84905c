package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gmercuri/miravoz/internal/avatar"
	"github.com/gmercuri/miravoz/internal/brain"
	"github.com/gmercuri/miravoz/internal/config"
	"github.com/gmercuri/miravoz/internal/conversation"
	"github.com/gmercuri/miravoz/internal/dispatch"
	"github.com/gmercuri/miravoz/internal/frame"
	"github.com/gmercuri/miravoz/internal/httpapi"
	"github.com/gmercuri/miravoz/internal/observability"
	"github.com/gmercuri/miravoz/internal/respond"
	"github.com/gmercuri/miravoz/internal/session"
	"github.com/gmercuri/miravoz/internal/speech"
	"github.com/gmercuri/miravoz/internal/uploader"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	turns, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer turns.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("conversation store: postgres")
	} else {
		log.Printf("conversation store: in-memory")
	}

	adapter := buildBrainAdapter(ctx, cfg)

	synthesizer := buildSynthesizer(cfg)

	avatars := avatar.NewManager(avatar.Config{
		APIKey:           cfg.DIDAPIKey,
		BaseURL:          cfg.DIDBaseURL,
		DefaultSourceURL: cfg.DIDDefaultSourceURL,
		VoiceID:          cfg.DIDVoiceID,
		PollInterval:     cfg.AvatarPollInterval,
		MaxPollAttempts:  cfg.AvatarMaxAttempts,
		ScriptMaxChars:   cfg.AvatarScriptMaxLen,
	})
	avatars.PollObserver = metrics.AvatarPolls.Inc
	if avatars.Configured() {
		log.Printf("avatar provider: d-id")
	} else {
		log.Printf("avatar provider: disabled (no DID_API_KEY)")
	}

	sessions := session.NewStore(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
	})

	frames := frame.NewStore()
	generator := respond.NewGenerator(adapter, cfg.HistoryWindow)
	dispatcher := dispatch.NewDispatcher(sessions, turns, frames, generator, synthesizer, avatars, metrics)

	uploads := uploader.NewImgBBUploader(cfg.ImgBBAPIKey, "")
	if uploads.Configured() {
		log.Printf("image host: imgbb")
	}

	api := httpapi.New(cfg, sessions, dispatcher, synthesizer, uploads, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// buildBrainAdapter resolves the reply model. With both providers
// configured in auto mode, OpenAI backs up Gemini so one outage does
// not take replies down.
func buildBrainAdapter(ctx context.Context, cfg config.Config) brain.Adapter {
	adapter, err := brain.NewAdapter(ctx, brain.Config{
		Mode:          cfg.BrainProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModelID: cfg.GeminiModelID,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModelID: cfg.OpenAIModelID,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}
	if adapter == nil {
		log.Printf("brain provider: none (placeholder replies only)")
		return nil
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.BrainProvider))
	if (mode == "" || mode == "auto") && cfg.GeminiAPIKey != "" && cfg.OpenAIAPIKey != "" {
		backup := brain.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
		log.Printf("brain provider: gemini with openai fallback")
		return brain.NewFallbackAdapter(adapter, backup)
	}
	log.Printf("brain provider: %s", resolvedBrainLabel(mode, cfg))
	return adapter
}

func resolvedBrainLabel(mode string, cfg config.Config) string {
	if mode == "" || mode == "auto" {
		if cfg.GeminiAPIKey != "" {
			return "gemini"
		}
		return "openai"
	}
	return mode
}

// buildSynthesizer assembles the speech chain: an ElevenLabs clone
// engine when a key is present, over the configured default engine.
func buildSynthesizer(cfg config.Config) *speech.Synthesizer {
	var clone speech.CloneEngine
	if cfg.ElevenLabsAPIKey != "" {
		clone = speech.NewElevenLabsEngine(speech.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			BaseURL:    cfg.ElevenLabsBaseURL,
			TTSModelID: cfg.ElevenLabsTTSModelID,
		})
		log.Printf("voice cloning: elevenlabs")
	}

	var fallback speech.Engine
	switch strings.ToLower(strings.TrimSpace(cfg.SpeechDefaultEngine)) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("SPEECH_DEFAULT_ENGINE=openai but OPENAI_API_KEY is not set")
		}
		fallback = speech.NewOpenAIEngine(cfg.OpenAIAPIKey)
		log.Printf("speech engine: openai")
	default:
		fallback = speech.NewGTTSEngine(speech.GTTSConfig{
			BaseURL:  cfg.GTTSBaseURL,
			Language: cfg.GTTSLanguage,
		})
		log.Printf("speech engine: gtts")
	}

	return speech.NewSynthesizer(clone, fallback)
}
