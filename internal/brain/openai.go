package brain

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter generates replies with OpenAI chat completions; vision
// requests attach the frame as a data-URL image part.
type OpenAIAdapter struct {
	client  *openai.Client
	modelID string
}

func NewOpenAIAdapter(apiKey, modelID string) *OpenAIAdapter {
	if strings.TrimSpace(modelID) == "" {
		modelID = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client:  openai.NewClient(apiKey),
		modelID: modelID,
	}
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	var message openai.ChatCompletionMessage
	if len(req.ImageBytes) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.ImageBytes))
		message = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}
	} else {
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.modelID,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("no chat completion choices returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("chat completion returned empty text")
	}
	return Response{Text: text}, nil
}
