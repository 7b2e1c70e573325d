package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts the throttling key from a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// forwardedHeaders are consulted in order before RemoteAddr.
var forwardedHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ClientIP returns the best-effort client address for r.
func ClientIP(r *http.Request) string {
	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		// X-Forwarded-For lists the original client first.
		for candidate := range strings.SplitSeq(v, ",") {
			if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}

// ByClientIP keys requests by ClientIP.
func ByClientIP() KeyFunc {
	return ClientIP
}

// ByHeader keys requests by a header value, falling back to the client IP.
func ByHeader(name string) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return name + ":" + v
		}
		return ClientIP(r)
	}
}
