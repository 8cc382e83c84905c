package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// gttsMaxChunkRunes is the longest text fragment the translate TTS
// endpoint accepts per request.
const gttsMaxChunkRunes = 200

type GTTSConfig struct {
	BaseURL  string
	Language string
}

// GTTSEngine synthesizes MP3 audio through the Google Translate TTS
// endpoint. It needs no credential, which makes it the last-resort
// default engine.
type GTTSEngine struct {
	cfg    GTTSConfig
	client *http.Client
}

func NewGTTSEngine(cfg GTTSConfig) *GTTSEngine {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://translate.google.com"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en"
	}
	return &GTTSEngine{
		cfg: cfg,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (e *GTTSEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	var out bytes.Buffer
	for _, chunk := range splitChunks(text, gttsMaxChunkRunes) {
		audio, err := e.fetchChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		_, _ = out.Write(audio)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("gtts returned empty audio")
	}
	return out.Bytes(), nil
}

func (e *GTTSEngine) fetchChunk(ctx context.Context, chunk string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", e.cfg.Language)
	q.Set("q", chunk)

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/translate_tts?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtts status %d", res.StatusCode)
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// splitChunks breaks text into rune-bounded fragments, preferring word
// boundaries so chunk seams do not cut words in half.
func splitChunks(text string, maxRunes int) []string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)
		if currentLen > 0 && currentLen+1+wordLen > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
