package speech

import (
	"context"
	"fmt"
	"log"
)

// Synthesizer chooses between a cloned voice and a default engine.
// A cloned voice is attempted only when the session carries a voice id
// and a clone-capable engine is configured; any clone failure falls
// back to the default engine so a reply never loses its audio because
// a premium provider hiccuped.
type Synthesizer struct {
	clone    CloneEngine
	fallback Engine
}

func NewSynthesizer(clone CloneEngine, fallback Engine) *Synthesizer {
	return &Synthesizer{clone: clone, fallback: fallback}
}

// CloneConfigured reports whether voice cloning is available at all.
func (s *Synthesizer) CloneConfigured() bool {
	return s.clone != nil
}

// CloneVoice registers a voice sample with the clone provider and
// returns the provider's voice id.
func (s *Synthesizer) CloneVoice(ctx context.Context, name, samplePath string) (string, error) {
	if s.clone == nil {
		return "", fmt.Errorf("voice cloning: %w", ErrUnavailable)
	}
	return s.clone.CloneVoice(ctx, name, samplePath)
}

// Synthesize renders text to audio. When voiceID is non-empty and a
// clone engine is configured the cloned voice is preferred, otherwise
// the default engine speaks. Every path failing yields ErrUnavailable.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	var cloneErr error
	if voiceID != "" && s.clone != nil {
		audio, err := s.clone.SynthesizeVoice(ctx, voiceID, text)
		if err == nil {
			return audio, nil
		}
		cloneErr = err
		log.Printf("cloned voice synthesis failed, falling back: %v", err)
	}

	if s.fallback == nil {
		if cloneErr != nil {
			return nil, fmt.Errorf("speech synthesis: %v: %w", cloneErr, ErrUnavailable)
		}
		return nil, fmt.Errorf("speech synthesis: %w", ErrUnavailable)
	}

	audio, err := s.fallback.Synthesize(ctx, text)
	if err != nil {
		if cloneErr != nil {
			return nil, fmt.Errorf("speech synthesis: clone: %v; default: %v: %w", cloneErr, err, ErrUnavailable)
		}
		return nil, fmt.Errorf("speech synthesis: %v: %w", err, ErrUnavailable)
	}
	return audio, nil
}
