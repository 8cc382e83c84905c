package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gmercuri/miravoz/internal/avatar"
	"github.com/gmercuri/miravoz/internal/conversation"
	"github.com/gmercuri/miravoz/internal/frame"
	"github.com/gmercuri/miravoz/internal/observability"
	"github.com/gmercuri/miravoz/internal/protocol"
	"github.com/gmercuri/miravoz/internal/respond"
	"github.com/gmercuri/miravoz/internal/session"
	"github.com/gmercuri/miravoz/internal/speech"
)

// Prometheus collectors register globally, so the package shares one
// metrics instance across tests.
var testMetrics = observability.NewMetrics("dispatch_test")

type stubEngine struct {
	audio []byte
	err   error
	panic bool
}

func (s *stubEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.panic {
		panic("engine exploded")
	}
	return s.audio, s.err
}

type fixture struct {
	dispatcher *Dispatcher
	sessions   *session.Store
	turns      conversation.Store
	frames     *frame.Store
}

func newFixture(t *testing.T, engine speech.Engine, avatars *avatar.Manager) *fixture {
	t.Helper()
	sessions := session.NewStore(time.Hour)
	turns := conversation.NewInMemoryStore()
	frames := frame.NewStore()
	generator := respond.NewGenerator(nil, 6)
	synthesizer := speech.NewSynthesizer(nil, engine)
	return &fixture{
		dispatcher: NewDispatcher(sessions, turns, frames, generator, synthesizer, avatars, testMetrics),
		sessions:   sessions,
		turns:      turns,
		frames:     frames,
	}
}

func runTurn(t *testing.T, f *fixture, msg any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbound := make(chan any, 1)
	outbound := make(chan any, 4)
	inbound <- msg
	close(inbound)

	done := make(chan struct{})
	go func() {
		f.dispatcher.RunConnection(ctx, inbound, outbound)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("dispatcher did not drain inbound")
	}

	select {
	case out := <-outbound:
		return out
	default:
		return nil
	}
}

func TestVideoFrameIsCachedAndEchoed(t *testing.T) {
	f := newFixture(t, &stubEngine{audio: []byte("mp3")}, nil)

	out := runTurn(t, f, protocol.VideoFrame{
		Type:      protocol.TypeVideoFrame,
		SessionID: "s1",
		Frame:     "frame-data",
	})

	echoed, ok := out.(protocol.VideoProcessed)
	if !ok {
		t.Fatalf("out = %T, want VideoProcessed", out)
	}
	if echoed.Frame != "frame-data" {
		t.Fatalf("Frame = %q", echoed.Frame)
	}
	if cached, ok := f.frames.Latest("s1"); !ok || cached != "frame-data" {
		t.Fatalf("cached frame = %q, %v", cached, ok)
	}
}

func TestEmptyUserMessageIsDropped(t *testing.T) {
	f := newFixture(t, &stubEngine{audio: []byte("mp3")}, nil)

	out := runTurn(t, f, protocol.UserMessage{
		Type:    protocol.TypeUserMessage,
		Message: "   ",
	})
	if out != nil {
		t.Fatalf("out = %v, want no output for blank message", out)
	}
	if n, _ := f.turns.TurnCount(context.Background(), session.DefaultKey); n != 0 {
		t.Fatalf("turn count = %d, want 0", n)
	}
}

func TestUserMessageProducesResponseAndRecordsTurns(t *testing.T) {
	f := newFixture(t, &stubEngine{audio: []byte("mp3-bytes")}, nil)

	out := runTurn(t, f, protocol.UserMessage{
		Type:      protocol.TypeUserMessage,
		SessionID: "s2",
		Message:   "hello there",
	})

	resp, ok := out.(protocol.AIResponse)
	if !ok {
		t.Fatalf("out = %T, want AIResponse", out)
	}
	if !strings.Contains(resp.Text, "hello there") {
		t.Fatalf("Text = %q, want the message echoed in the placeholder", resp.Text)
	}
	if resp.AudioBase64 != base64.StdEncoding.EncodeToString([]byte("mp3-bytes")) {
		t.Fatalf("AudioBase64 = %q", resp.AudioBase64)
	}
	if resp.AvatarVideo != nil {
		t.Fatalf("AvatarVideo = %v, want nil without a provider", *resp.AvatarVideo)
	}

	history, err := f.turns.RecentWindow(context.Background(), "s2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user and assistant turns", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[0].Content != "hello there" {
		t.Fatalf("first turn = %+v", history[0])
	}
	if history[1].Role != conversation.RoleAssistant || history[1].Content != resp.Text {
		t.Fatalf("second turn = %+v", history[1])
	}
}

func TestSpeechOutageDegradesToSilentReply(t *testing.T) {
	f := newFixture(t, nil, nil)

	out := runTurn(t, f, protocol.UserMessage{
		Type:    protocol.TypeUserMessage,
		Message: "hello",
	})

	resp, ok := out.(protocol.AIResponse)
	if !ok {
		t.Fatalf("out = %T, want AIResponse", out)
	}
	if resp.AudioBase64 != "" {
		t.Fatalf("AudioBase64 = %q, want empty when synthesis is down", resp.AudioBase64)
	}
	if resp.Text == "" {
		t.Fatal("Text is empty, reply text must survive a speech outage")
	}
}

func TestAvatarVideoIsProxied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tlk-9"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":     avatar.StatusDone,
			"result_url": "https://videos.example.com/tlk-9.mp4",
		})
	}))
	defer server.Close()

	avatars := avatar.NewManager(avatar.Config{
		APIKey:           "key",
		BaseURL:          server.URL,
		DefaultSourceURL: "https://cdn.example.com/alice.jpg",
	})
	f := newFixture(t, &stubEngine{audio: []byte("mp3")}, avatars)

	out := runTurn(t, f, protocol.UserMessage{
		Type:      protocol.TypeUserMessage,
		SessionID: "s3",
		Message:   "hello",
	})

	resp, ok := out.(protocol.AIResponse)
	if !ok {
		t.Fatalf("out = %T, want AIResponse", out)
	}
	if resp.AvatarVideo == nil {
		t.Fatal("AvatarVideo = nil, want proxied URL")
	}
	want := VideoProxyPath + "?url=https%3A%2F%2Fvideos.example.com%2Ftlk-9.mp4"
	if *resp.AvatarVideo != want {
		t.Fatalf("AvatarVideo = %q, want %q", *resp.AvatarVideo, want)
	}

	sess, err := f.sessions.Get("s3")
	if err != nil {
		t.Fatal(err)
	}
	if sess.AvatarVideoURL != "https://videos.example.com/tlk-9.mp4" {
		t.Fatalf("session AvatarVideoURL = %q", sess.AvatarVideoURL)
	}
}

func TestAvatarFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "render farm down", http.StatusInternalServerError)
	}))
	defer server.Close()

	avatars := avatar.NewManager(avatar.Config{
		APIKey:           "key",
		BaseURL:          server.URL,
		DefaultSourceURL: "https://cdn.example.com/alice.jpg",
	})
	f := newFixture(t, &stubEngine{audio: []byte("mp3")}, avatars)

	out := runTurn(t, f, protocol.UserMessage{
		Type:    protocol.TypeUserMessage,
		Message: "hello",
	})

	resp, ok := out.(protocol.AIResponse)
	if !ok {
		t.Fatalf("out = %T, want AIResponse despite avatar failure", out)
	}
	if resp.AvatarVideo != nil {
		t.Fatalf("AvatarVideo = %v, want nil", *resp.AvatarVideo)
	}
}

func TestPanicDuringTurnBecomesErrorEvent(t *testing.T) {
	f := newFixture(t, &stubEngine{panic: true}, nil)

	out := runTurn(t, f, protocol.UserMessage{
		Type:    protocol.TypeUserMessage,
		Message: "hello",
	})

	evt, ok := out.(protocol.ErrorEvent)
	if !ok {
		t.Fatalf("out = %T, want ErrorEvent after panic", out)
	}
	if evt.Message == "" {
		t.Fatal("ErrorEvent.Message is empty")
	}
}
