// Package httpapi exposes the web surface: the browser UI, the
// websocket relay, upload endpoints, and operational probes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gmercuri/miravoz/internal/config"
	"github.com/gmercuri/miravoz/internal/observability"
	"github.com/gmercuri/miravoz/internal/protocol"
	"github.com/gmercuri/miravoz/internal/session"
	"github.com/gmercuri/miravoz/internal/speech"
	"github.com/gmercuri/miravoz/internal/uploader"
)

// ConnectionRunner consumes parsed inbound messages and produces
// outbound protocol events for one websocket connection.
type ConnectionRunner interface {
	RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any)
}

type Server struct {
	cfg         config.Config
	sessions    *session.Store
	runner      ConnectionRunner
	synthesizer *speech.Synthesizer
	uploads     *uploader.ImgBBUploader
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
	static      http.Handler
	proxyClient *http.Client
}

func New(cfg config.Config, sessions *session.Store, runner ConnectionRunner, synthesizer *speech.Synthesizer, uploads *uploader.ImgBBUploader, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		sessions:    sessions,
		runner:      runner,
		synthesizer: synthesizer,
		uploads:     uploads,
		metrics:     metrics,
		static:      newStaticHandler(),
		proxyClient: &http.Client{Timeout: 60 * time.Second},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a session unless
				// explicitly opened up. Non-browser clients omit Origin
				// and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws", s.handleWS)
	r.Post("/v1/uploads/avatar", s.handleUploadAvatar)
	r.Post("/v1/uploads/voice", s.handleUploadVoice)
	r.Get("/video/proxy", s.handleVideoProxy)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleWS upgrades the connection and bridges it to the runner. The
// session key comes from the session_id query parameter; an absent key
// maps every anonymous visitor onto the shared default session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "connection runner not configured")
		return
	}
	sessionKey := strings.TrimSpace(r.URL.Query().Get("session_id"))
	s.sessions.Resolve(sessionKey)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runner.RunConnection(ctx, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(16 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:    protocol.TypeError,
				Message: err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Writes stay single-threaded; drop when saturated.
			}
			continue
		}

		// Stamp frames and messages with the resolved session so the
		// runner never sees a foreign key.
		switch m := parsed.(type) {
		case protocol.VideoFrame:
			m.SessionID = sessionKey
			parsed = m
		case protocol.UserMessage:
			m.SessionID = sessionKey
			parsed = m
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
