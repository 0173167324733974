package detect

import (
	"net"
	"net/http"
	"strings"
)

// clientIP extracts the client address from the request. Forwarding
// headers are client-controlled, so they are honored only when the
// deployment sits behind a trusted proxy; otherwise a caller could rekey
// its history and reputation with a spoofed header.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First IP in the chain is the original client.
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
