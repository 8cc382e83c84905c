// Package dispatch drives the conversational pipeline for a websocket
// connection: frames are cached and echoed, user messages flow through
// reply generation, speech synthesis, and avatar rendering.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/url"
	"strings"
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

// VideoProxyPath is the same-origin endpoint avatar video URLs are
// rewritten through before reaching the client.
const VideoProxyPath = "/video/proxy"

type Dispatcher struct {
	sessions    *session.Store
	turns       conversation.Store
	frames      *frame.Store
	generator   *respond.Generator
	synthesizer *speech.Synthesizer
	avatars     *avatar.Manager
	metrics     *observability.Metrics
}

func NewDispatcher(
	sessions *session.Store,
	turns conversation.Store,
	frames *frame.Store,
	generator *respond.Generator,
	synthesizer *speech.Synthesizer,
	avatars *avatar.Manager,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		sessions:    sessions,
		turns:       turns,
		frames:      frames,
		generator:   generator,
		synthesizer: synthesizer,
		avatars:     avatars,
		metrics:     metrics,
	}
}

// RunConnection consumes parsed client messages from inbound and emits
// protocol events on outbound until the context ends or inbound
// closes. Outbound is not closed here; the transport owns it.
func (d *Dispatcher) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) {
	d.metrics.ActiveSessions.Inc()
	d.metrics.SessionEvents.WithLabelValues("connected").Inc()
	defer func() {
		d.metrics.ActiveSessions.Dec()
		d.metrics.SessionEvents.WithLabelValues("disconnected").Inc()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			d.handleMessage(ctx, msg, outbound)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg any, outbound chan<- any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch panic recovered: %v", r)
			d.metrics.SessionEvents.WithLabelValues("panic_recovered").Inc()
			d.send(ctx, outbound, protocol.ErrorEvent{
				Type:    protocol.TypeError,
				Message: "Error processing your message",
			})
		}
	}()

	switch m := msg.(type) {
	case protocol.VideoFrame:
		d.metrics.WSMessages.WithLabelValues("in", string(protocol.TypeVideoFrame)).Inc()
		d.handleVideoFrame(ctx, m, outbound)
	case protocol.UserMessage:
		d.metrics.WSMessages.WithLabelValues("in", string(protocol.TypeUserMessage)).Inc()
		d.handleUserMessage(ctx, m, outbound)
	default:
		log.Printf("dispatch: dropping message of unexpected type %T", msg)
	}
}

func (d *Dispatcher) handleVideoFrame(ctx context.Context, msg protocol.VideoFrame, outbound chan<- any) {
	sess := d.sessions.Resolve(msg.SessionID)
	d.frames.Put(sess.Key, msg.Frame)
	d.send(ctx, outbound, protocol.VideoProcessed{
		Type:  protocol.TypeVideoProcessed,
		Frame: msg.Frame,
	})
}

func (d *Dispatcher) handleUserMessage(ctx context.Context, msg protocol.UserMessage, outbound chan<- any) {
	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return
	}
	started := time.Now()

	sess := d.sessions.Resolve(msg.SessionID)
	_ = d.sessions.Touch(sess.Key)

	history, err := d.turns.RecentWindow(ctx, sess.Key, d.generator.HistoryWindow())
	if err != nil {
		log.Printf("history lookup failed for session %s: %v", sess.Key, err)
	}

	img := d.latestImage(sess.Key)
	reply := d.generator.Generate(ctx, sess.Key, text, history, img)

	d.appendTurn(ctx, sess.Key, conversation.RoleUser, text)
	d.appendTurn(ctx, sess.Key, conversation.RoleAssistant, reply)

	audio := d.synthesizeReply(ctx, sess, reply)
	avatarVideo := d.renderAvatar(ctx, sess, reply)

	d.metrics.ObserveTurnLatency(time.Since(started))
	d.send(ctx, outbound, protocol.AIResponse{
		Type:        protocol.TypeAIResponse,
		Text:        reply,
		AudioBase64: audio,
		AvatarVideo: avatarVideo,
	})
}

// latestImage decodes the most recent cached frame for the session.
// Stale or undecodable frames degrade to text-only generation.
func (d *Dispatcher) latestImage(sessionKey string) *frame.Image {
	payload, ok := d.frames.Latest(sessionKey)
	if !ok {
		return nil
	}
	img, err := frame.Decode(payload)
	if err != nil {
		log.Printf("frame decode failed for session %s: %v", sessionKey, err)
		return nil
	}
	return img
}

func (d *Dispatcher) appendTurn(ctx context.Context, sessionKey, role, content string) {
	err := d.turns.AppendTurn(ctx, conversation.TurnRecord{
		SessionKey: sessionKey,
		Role:       role,
		Content:    content,
	})
	if err != nil {
		log.Printf("append %s turn failed for session %s: %v", role, sessionKey, err)
	}
}

// synthesizeReply returns base64 MP3 audio, or an empty string when
// every speech path is down. A silent reply still ships its text.
func (d *Dispatcher) synthesizeReply(ctx context.Context, sess *session.Session, reply string) string {
	if d.synthesizer == nil {
		return ""
	}
	audio, err := d.synthesizer.Synthesize(ctx, reply, sess.VoiceID)
	if err != nil {
		if !errors.Is(err, speech.ErrUnavailable) {
			log.Printf("speech synthesis failed for session %s: %v", sess.Key, err)
		}
		d.metrics.ProviderErrors.WithLabelValues("speech", "synthesize").Inc()
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}

// renderAvatar requests a talking-head video for the reply and rewrites
// the provider URL through the same-origin proxy. Failures are logged
// and the reply goes out without a video.
func (d *Dispatcher) renderAvatar(ctx context.Context, sess *session.Session, reply string) *string {
	if d.avatars == nil || !d.avatars.Configured() {
		return nil
	}

	sourceURL := sess.AvatarImageURL
	if strings.TrimSpace(sourceURL) == "" {
		sourceURL = d.avatars.DefaultSourceURL()
	}

	resultURL, err := d.avatars.RequestTalkingVideo(ctx, sourceURL, reply)
	if err != nil {
		log.Printf("avatar render failed for session %s: %v", sess.Key, err)
		d.metrics.ProviderErrors.WithLabelValues("avatar", "render").Inc()
		return nil
	}

	d.sessions.SetAvatarVideo(sess.Key, resultURL)
	proxied := VideoProxyPath + "?url=" + url.QueryEscape(resultURL)
	return &proxied
}

func (d *Dispatcher) send(ctx context.Context, outbound chan<- any, msg any) {
	msgType := "unknown"
	switch m := msg.(type) {
	case protocol.VideoProcessed:
		msgType = string(m.Type)
	case protocol.AIResponse:
		msgType = string(m.Type)
	case protocol.ErrorEvent:
		msgType = string(m.Type)
	}

	select {
	case outbound <- msg:
		d.metrics.WSMessages.WithLabelValues("out", msgType).Inc()
	case <-ctx.Done():
		d.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
	}
}
