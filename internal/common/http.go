package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address for rate limiting. Proxy
// headers win over the socket address: the first X-Forwarded-For hop,
// then X-Real-IP, then RemoteAddr with the port stripped.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
		return xff
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
