package respond

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gmercuri/miravoz/internal/brain"
	"github.com/gmercuri/miravoz/internal/conversation"
	"github.com/gmercuri/miravoz/internal/frame"
)

const (
	textPreamble = "You are a helpful AI video call assistant. You can see the user " +
		"through their camera and help them with tasks, answer questions, and provide " +
		"guidance. Be friendly, concise (2-3 sentences max), and helpful."

	visionPreamble = "You are an AI video call assistant. The user is showing you " +
		"something through their camera and asking: %q\n\nAnalyze the image and provide " +
		"a helpful, concise response (2-3 sentences). Describe what you see and answer " +
		"their question."

	// Returned whenever the model capability errors; never surfaced as a failure.
	apologyReply = "I'm having trouble analyzing the video right now. Could you please try again?"
)

// visionKeywords gates the vision path; any case-insensitive substring
// match sends the latest frame along with the message.
var visionKeywords = []string{
	"see", "look", "show", "what", "this", "identify", "recognize",
	"watch", "viewing", "object", "thing", "here", "camera",
}

// DefaultVisionPredicate reports whether a message is vision-seeking.
func DefaultVisionPredicate(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Generator turns one user message plus accumulated context into reply
// text. It owns its fallbacks: provider errors become a fixed apology,
// and a missing capability becomes a deterministic placeholder.
type Generator struct {
	adapter       brain.Adapter
	visionSeeking func(string) bool
	historyWindow int
}

func NewGenerator(adapter brain.Adapter, historyWindow int) *Generator {
	if historyWindow <= 0 {
		historyWindow = 6
	}
	return &Generator{
		adapter:       adapter,
		visionSeeking: DefaultVisionPredicate,
		historyWindow: historyWindow,
	}
}

// SetVisionPredicate replaces the keyword gate, e.g. with a model-based
// classifier. A nil predicate restores the default.
func (g *Generator) SetVisionPredicate(pred func(string) bool) {
	if pred == nil {
		pred = DefaultVisionPredicate
	}
	g.visionSeeking = pred
}

// HistoryWindow reports how many trailing turns Generate consumes.
func (g *Generator) HistoryWindow() int { return g.historyWindow }

// Generate produces reply text for one message. The frame may be nil;
// the vision path is taken only when the message is vision-seeking and
// a decoded frame is available.
func (g *Generator) Generate(ctx context.Context, sessionKey, message string, history []conversation.TurnRecord, img *frame.Image) string {
	if g.adapter == nil {
		return fmt.Sprintf("I received your message: %q. To get intelligent responses, "+
			"configure a model provider API key.", message)
	}

	var req brain.Request
	if g.visionSeeking(message) && img != nil {
		req = brain.Request{
			SessionKey: sessionKey,
			Prompt:     fmt.Sprintf(visionPreamble, message),
			ImageBytes: img.Bytes,
			ImageMIME:  img.MIME,
		}
	} else {
		req = brain.Request{
			SessionKey: sessionKey,
			Prompt:     g.textPrompt(message, history),
		}
	}

	resp, err := g.adapter.Generate(ctx, req)
	if err != nil {
		log.Printf("brain generate failed for session %s: %v", sessionKey, err)
		return apologyReply
	}
	return resp.Text
}

func (g *Generator) textPrompt(message string, history []conversation.TurnRecord) string {
	var b strings.Builder
	b.WriteString(textPreamble)
	b.WriteString("\n\n")

	if len(history) > g.historyWindow {
		history = history[len(history)-g.historyWindow:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range history {
			role := "User"
			if turn.Role == conversation.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User: %s\nAssistant:", message)
	return b.String()
}
