package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin returns a CheckOrigin function for the upgrader. It allows
// empty origins (non-browser clients) and every origin in allowed. When
// isDevelopment is true, localhost origins are additionally allowed.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = normalizeOrigin(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if _, ok := origins[normalizeOrigin(origin)]; ok {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

// normalizeOrigin reduces a URL to scheme://host, lowercased.
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
