package evidence

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address, honouring common proxy headers in
// order: CF-Connecting-IP, True-Client-IP, X-Forwarded-For (first valid entry), X-Real-IP,
// then RemoteAddr. Returns "" when nothing parses as an IP.
func ClientIP(r *http.Request) string {
	for _, h := range []string{"CF-Connecting-IP", "True-Client-IP"} {
		if ip := normalizeIP(r.Header.Get(h)); ip != "" {
			return ip
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for candidate := range strings.SplitSeq(forwarded, ",") {
			if ip := normalizeIP(candidate); ip != "" {
				return ip
			}
		}
	}

	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalizeIP(r.RemoteAddr)
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
