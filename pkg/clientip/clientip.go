package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the client IP from the request.
// Uses r.RemoteAddr only (no proxy headers). Use for rate limiting and logging
// when traffic goes directly to the app.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// ForwardedClientIP takes the right-most X-Forwarded-For entry, which is the
// address our proxy appended. Everything to its left came from the client.
// Falls back to RemoteAddr when that entry is not an IP.
func ForwardedClientIP(r *http.Request) string {
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) != nil {
			return hop
		}
		break
	}
	return RealClientIP(r)
}

// Resolver returns the IP function matching the deployment.
func Resolver(trustProxy bool) func(*http.Request) string {
	if trustProxy {
		return ForwardedClientIP
	}
	return RealClientIP
}

// UserAgent returns the trimmed User-Agent header, or "unknown".
func UserAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return "unknown"
	}
	return ua
}
