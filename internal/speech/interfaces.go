package speech

import (
	"context"
	"errors"
)

// ErrUnavailable reports that every synthesis path failed. Callers get
// either audio bytes or this error, never silent empty output.
var ErrUnavailable = errors.New("speech synthesis unavailable")

// Engine synthesizes text with a fixed default voice.
type Engine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CloneEngine synthesizes with a cloned voice and creates clones from
// uploaded samples.
type CloneEngine interface {
	SynthesizeVoice(ctx context.Context, voiceID, text string) ([]byte, error)
	CloneVoice(ctx context.Context, name, samplePath string) (string, error)
}
