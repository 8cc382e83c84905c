package httpapi

import (
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true, ".webm": true,
}

// handleUploadAvatar stores a portrait image for the session and, when
// an image host is configured, publishes it so the avatar render
// provider can fetch it.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	sessionKey, file, header, ok := s.acceptUpload(w, r, "image")
	if !ok {
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !imageExtensions[ext] {
		respondError(w, http.StatusBadRequest, "unsupported_file_type", "expected an image file")
		return
	}

	localPath, err := s.saveUpload(file, ext)
	if err != nil {
		log.Printf("avatar upload save failed: %v", err)
		respondError(w, http.StatusInternalServerError, "upload_failed", "could not store the file")
		return
	}

	publicURL := ""
	if s.uploads != nil {
		publicURL, err = s.uploads.PublicURL(r.Context(), localPath)
		if err != nil {
			// Hosting is best effort; the session keeps the local copy.
			log.Printf("avatar publish failed: %v", err)
		}
	}

	s.sessions.SetAvatarImage(sessionKey, localPath, publicURL)
	s.metrics.SessionEvents.WithLabelValues("avatar_uploaded").Inc()

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionKey,
		"path":       localPath,
		"public_url": publicURL,
	})
}

// handleUploadVoice stores a voice sample and, when a clone-capable
// engine is configured, registers a cloned voice for the session.
func (s *Server) handleUploadVoice(w http.ResponseWriter, r *http.Request) {
	sessionKey, file, header, ok := s.acceptUpload(w, r, "audio")
	if !ok {
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !audioExtensions[ext] {
		respondError(w, http.StatusBadRequest, "unsupported_file_type", "expected an audio file")
		return
	}

	localPath, err := s.saveUpload(file, ext)
	if err != nil {
		log.Printf("voice upload save failed: %v", err)
		respondError(w, http.StatusInternalServerError, "upload_failed", "could not store the file")
		return
	}
	s.sessions.SetVoiceSample(sessionKey, localPath)

	voiceID := ""
	if s.synthesizer != nil && s.synthesizer.CloneConfigured() {
		voiceID, err = s.synthesizer.CloneVoice(r.Context(), "session-"+sessionKey, localPath)
		if err != nil {
			// Cloning is best effort; replies fall back to the default voice.
			log.Printf("voice clone failed for session %s: %v", sessionKey, err)
			voiceID = ""
		}
	}
	s.sessions.SetVoiceID(sessionKey, voiceID)
	s.metrics.SessionEvents.WithLabelValues("voice_uploaded").Inc()

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionKey,
		"path":       localPath,
		"voice_id":   voiceID,
	})
}

// acceptUpload validates the multipart request and resolves its
// session. The caller owns the returned file.
func (s *Server) acceptUpload(w http.ResponseWriter, r *http.Request, field string) (string, multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(s.cfg.UploadMaxBytes); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "file exceeds the upload limit")
		return "", nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "multipart field "+field+" is required")
		return "", nil, nil, false
	}

	sessionKey := strings.TrimSpace(r.FormValue("session_id"))
	sess := s.sessions.Resolve(sessionKey)
	return sess.Key, file, header, true
}

// saveUpload writes the file under the upload directory with a
// generated name, never trusting the client filename.
func (s *Server) saveUpload(file multipart.File, ext string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	localPath := filepath.Join(s.cfg.UploadDir, uuid.NewString()+ext)
	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}
