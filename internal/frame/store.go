package frame

import (
	"strings"
	"sync"
)

// Store keeps the most recently received camera frame per session with
// last-writer-wins semantics. Frames never trigger replies; the message
// path reads whatever is latest at generation time.
type Store struct {
	mu     sync.RWMutex
	latest map[string]string
}

func NewStore() *Store {
	return &Store{latest: make(map[string]string)}
}

func (s *Store) Put(sessionKey, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[normalizeKey(sessionKey)] = data
}

func (s *Store) Latest(sessionKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.latest[normalizeKey(sessionKey)]
	if !ok || data == "" {
		return "", false
	}
	return data, true
}

// Reset drops all stored frames. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[string]string)
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "default"
	}
	return key
}
