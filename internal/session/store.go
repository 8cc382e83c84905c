package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultKey names the session used by clients that never supply one.
const DefaultKey = "default"

var ErrNotFound = errors.New("session not found")

// Session holds per-caller avatar and voice preferences.
type Session struct {
	Key             string    `json:"session_id"`
	AvatarImagePath string    `json:"avatar_image_path,omitempty"`
	AvatarImageURL  string    `json:"avatar_image_url,omitempty"`
	VoiceSamplePath string    `json:"voice_sample_path,omitempty"`
	VoiceID         string    `json:"voice_id,omitempty"`
	AvatarVideoURL  string    `json:"avatar_video_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// Store is a keyed in-memory registry of session profiles.
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewStore(inactivityTimeout time.Duration) *Store {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Store{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (s *Store) SetExpireHook(hook func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Resolve returns the session for key, creating it lazily on first sight.
// An empty key maps to DefaultKey.
func (s *Store) Resolve(key string) *Session {
	key = normalizeKey(key)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = &Session{Key: key, CreatedAt: now}
		s.sessions[key] = sess
	}
	sess.LastActivityAt = now
	return clone(sess)
}

func (s *Store) Get(key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[normalizeKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

func (s *Store) Touch(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[normalizeKey(key)]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// SetAvatarImage records an uploaded avatar image. The public URL may be
// empty when the upload collaborator is unconfigured or failed.
func (s *Store) SetAvatarImage(key, localPath, publicURL string) {
	s.mutate(key, func(sess *Session) {
		sess.AvatarImagePath = localPath
		if strings.TrimSpace(publicURL) != "" {
			sess.AvatarImageURL = publicURL
		}
	})
}

func (s *Store) SetVoiceSample(key, localPath string) {
	s.mutate(key, func(sess *Session) {
		sess.VoiceSamplePath = localPath
	})
}

// SetVoiceID records a cloned-voice identifier; callers must only pass
// identifiers returned by a successful clone call.
func (s *Store) SetVoiceID(key, voiceID string) {
	if strings.TrimSpace(voiceID) == "" {
		return
	}
	s.mutate(key, func(sess *Session) {
		sess.VoiceID = voiceID
	})
}

func (s *Store) SetAvatarVideo(key, videoURL string) {
	if strings.TrimSpace(videoURL) == "" {
		return
	}
	s.mutate(key, func(sess *Session) {
		sess.AvatarVideoURL = videoURL
	})
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Reset drops all sessions. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}

// StartJanitor expires sessions idle longer than the inactivity timeout.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireInactive()
			}
		}
	}()
}

func (s *Store) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	s.mu.Lock()
	for key, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) < s.inactivityTimeout {
			continue
		}
		expired = append(expired, clone(sess))
		delete(s.sessions, key)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, sess := range expired {
			hook(sess)
		}
	}
}

func (s *Store) mutate(key string, fn func(*Session)) {
	key = normalizeKey(key)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = &Session{Key: key, CreatedAt: now}
		s.sessions[key] = sess
	}
	fn(sess)
	sess.LastActivityAt = now
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultKey
	}
	return key
}

func clone(sess *Session) *Session {
	c := *sess
	return &c
}
