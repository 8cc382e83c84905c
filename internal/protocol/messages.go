package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeVideoFrame     MessageType = "video_frame"
	TypeUserMessage    MessageType = "user_message"
	TypeVideoProcessed MessageType = "video_processed"
	TypeAIResponse     MessageType = "ai_response"
	TypeError          MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// VideoFrame carries one camera frame, base64 or data-URL encoded.
type VideoFrame struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Frame     string      `json:"frame"`
}

type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   string      `json:"message"`
}

// VideoProcessed echoes a received frame back for display.
type VideoProcessed struct {
	Type  MessageType `json:"type"`
	Frame string      `json:"frame"`
}

// AIResponse is the single reply emitted for an accepted user message.
// AvatarVideo is a same-origin proxied URL, never the raw provider URL.
type AIResponse struct {
	Type        MessageType `json:"type"`
	Text        string      `json:"text"`
	AudioBase64 string      `json:"audio"`
	AvatarVideo *string     `json:"avatar_video"`
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ParseClientMessage decodes and validates one inbound payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeVideoFrame:
		var msg VideoFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Frame == "" {
			return nil, errors.New("invalid video_frame: empty frame")
		}
		return msg, nil
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		// Empty messages parse fine; the dispatcher drops them silently.
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
