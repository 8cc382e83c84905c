package speech

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine synthesizes speech with the OpenAI TTS API, selectable
// as the default engine instead of gtts.
type OpenAIEngine struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

func NewOpenAIEngine(apiKey string) *OpenAIEngine {
	return &OpenAIEngine{
		client: openai.NewClient(apiKey),
		voice:  openai.VoiceNova,
	}
}

func (e *OpenAIEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	res, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          e.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts synthesis failed: %w", err)
	}
	defer res.Close()

	audio, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai tts returned empty audio")
	}
	return audio, nil
}
