package evidence

import (
	"net/http"
	"strings"
)

// Key prefixes used in evidence maps.
const (
	PrefixHeader = "header."
	PrefixQuery  = "query."
	PrefixCookie = "cookie."
	PrefixServer = "server."

	KeyClientIP = PrefixServer + "client-ip"
)

// FromRequest collects headers, query parameters, cookies and the client IP of r.
// Multi-valued headers and parameters are joined with ", " in arrival order.
func FromRequest(r *http.Request) map[string]string {
	ev := make(map[string]string, len(r.Header)+4)

	for name, values := range r.Header {
		if strings.EqualFold(name, "Cookie") {
			continue
		}
		ev[PrefixHeader+strings.ToLower(name)] = strings.Join(values, ", ")
	}

	for name, values := range r.URL.Query() {
		ev[PrefixQuery+strings.ToLower(name)] = strings.Join(values, ", ")
	}

	for _, c := range r.Cookies() {
		ev[PrefixCookie+c.Name] = c.Value
	}

	if ip := ClientIP(r); ip != "" {
		ev[KeyClientIP] = ip
	}

	return ev
}

// FilterPrefix returns the entries of ev whose key starts with any of prefixes.
func FilterPrefix(ev map[string]string, prefixes ...string) map[string]string {
	out := make(map[string]string, len(ev))
	for k, v := range ev {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				out[k] = v
				break
			}
		}
	}
	return out
}
