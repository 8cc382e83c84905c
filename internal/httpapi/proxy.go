package httpapi

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// allowedVideoHostSuffixes limits the proxy to the avatar provider's
// result hosts so it cannot be used as an open relay.
var allowedVideoHostSuffixes = []string{
	".d-id.com",
	".amazonaws.com",
}

// handleVideoProxy streams a rendered avatar video from the provider
// through the server's own origin, which keeps provider URLs out of
// the browser and sidesteps their CORS policy.
func (s *Server) handleVideoProxy(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing_url", "query parameter url is required")
		return
	}

	target, err := url.Parse(raw)
	if err != nil || target.Scheme != "https" {
		respondError(w, http.StatusBadRequest, "invalid_url", "url must be absolute https")
		return
	}
	if !videoHostAllowed(target.Hostname()) {
		respondError(w, http.StatusForbidden, "host_not_allowed", "url host is not an approved video source")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		respondError(w, http.StatusBadGateway, "proxy_failed", "could not build upstream request")
		return
	}

	res, err := s.proxyClient.Do(req)
	if err != nil {
		respondError(w, http.StatusBadGateway, "proxy_failed", "upstream fetch failed")
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		respondError(w, http.StatusBadGateway, "proxy_failed", "upstream returned "+res.Status)
		return
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if cl := res.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, res.Body)
}

func videoHostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range allowedVideoHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
