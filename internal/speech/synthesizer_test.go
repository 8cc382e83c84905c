package speech

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubEngine struct {
	audio []byte
	err   error
	calls int
}

func (s *stubEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type stubClone struct {
	audio   []byte
	err     error
	voiceID string
	calls   int
}

func (s *stubClone) SynthesizeVoice(ctx context.Context, voiceID, text string) ([]byte, error) {
	s.calls++
	s.voiceID = voiceID
	return s.audio, s.err
}

func (s *stubClone) CloneVoice(ctx context.Context, name, samplePath string) (string, error) {
	return "voice-123", nil
}

func TestSynthesizePrefersClonedVoice(t *testing.T) {
	clone := &stubClone{audio: []byte("cloned")}
	def := &stubEngine{audio: []byte("default")}
	syn := NewSynthesizer(clone, def)

	audio, err := syn.Synthesize(context.Background(), "hello", "v1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "cloned" {
		t.Fatalf("audio = %q, want cloned output", audio)
	}
	if clone.voiceID != "v1" {
		t.Fatalf("clone voiceID = %q, want v1", clone.voiceID)
	}
	if def.calls != 0 {
		t.Fatalf("default engine called %d times, want 0", def.calls)
	}
}

func TestSynthesizeFallsBackOnCloneFailure(t *testing.T) {
	clone := &stubClone{err: fmt.Errorf("quota exceeded")}
	def := &stubEngine{audio: []byte("default")}
	syn := NewSynthesizer(clone, def)

	audio, err := syn.Synthesize(context.Background(), "hello", "v1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "default" {
		t.Fatalf("audio = %q, want default engine output", audio)
	}
	if clone.calls != 1 || def.calls != 1 {
		t.Fatalf("calls clone=%d default=%d, want 1 each", clone.calls, def.calls)
	}
}

func TestSynthesizeSkipsCloneWithoutVoiceID(t *testing.T) {
	clone := &stubClone{audio: []byte("cloned")}
	def := &stubEngine{audio: []byte("default")}
	syn := NewSynthesizer(clone, def)

	audio, err := syn.Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "default" {
		t.Fatalf("audio = %q, want default engine output", audio)
	}
	if clone.calls != 0 {
		t.Fatalf("clone engine called %d times, want 0", clone.calls)
	}
}

func TestSynthesizeAllEnginesFail(t *testing.T) {
	clone := &stubClone{err: fmt.Errorf("clone down")}
	def := &stubEngine{err: fmt.Errorf("default down")}
	syn := NewSynthesizer(clone, def)

	_, err := syn.Synthesize(context.Background(), "hello", "v1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Synthesize() error = %v, want ErrUnavailable", err)
	}
}

func TestSynthesizeNoEnginesConfigured(t *testing.T) {
	syn := NewSynthesizer(nil, nil)

	_, err := syn.Synthesize(context.Background(), "hello", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Synthesize() error = %v, want ErrUnavailable", err)
	}
}

func TestCloneVoiceUnconfigured(t *testing.T) {
	syn := NewSynthesizer(nil, &stubEngine{audio: []byte("x")})

	if syn.CloneConfigured() {
		t.Fatal("CloneConfigured() = true, want false")
	}
	_, err := syn.CloneVoice(context.Background(), "me", "/tmp/sample.wav")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CloneVoice() error = %v, want ErrUnavailable", err)
	}
}
