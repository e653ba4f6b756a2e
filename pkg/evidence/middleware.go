package evidence

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/dmitrymomot/usagekit/pkg/logger"
)

// KeyHostIP is the evidence key for the local address that accepted the request.
const KeyHostIP = PrefixServer + "host-ip"

// Processor accepts evidence for sharing. *shareusage.ShareUsage satisfies it.
type Processor interface {
	Process(ctx context.Context, ev map[string]string) error
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	logger *slog.Logger
	skip   func(*http.Request) bool
}

// WithMiddlewareLogger logs Process errors, such as a full queue, at debug level.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(m *middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSkipper excludes requests, e.g. health checks or static assets.
func WithSkipper(skip func(*http.Request) bool) MiddlewareOption {
	return func(m *middleware) { m.skip = skip }
}

// Middleware hands the evidence of every request to p before calling next.
// Processing never fails the request.
func Middleware(p Processor, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &middleware{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skip == nil || !m.skip(r) {
				ev := FromRequest(r)
				if ip := hostIP(r); ip != "" {
					ev[KeyHostIP] = ip
				}
				if err := p.Process(r.Context(), ev); err != nil {
					m.logger.DebugContext(r.Context(), "usage evidence not shared", logger.Error(err))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostIP(r *http.Request) string {
	addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok || addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return normalizeIP(addr.String())
	}
	return normalizeIP(host)
}
