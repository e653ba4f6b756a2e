package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/usagekit/pkg/logger"
	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// HTTPSink posts gzip-compressed XML packets to a collection endpoint.
type HTTPSink struct {
	endpoint  string
	client    *http.Client
	builder   *PacketBuilder
	userAgent string
	headers   map[string]string
	timeout   time.Duration

	maxRetries int
	backoff    BackoffStrategy
	breaker    *CircuitBreaker

	logger *slog.Logger
}

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithPacketBuilder shares a builder (and its session id and sequence) between sinks.
func WithPacketBuilder(b *PacketBuilder) HTTPOption {
	return func(s *HTTPSink) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithUserAgent sets the User-Agent of outgoing requests.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPSink) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHeader adds a request header, e.g. an API key expected by a custom endpoint.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSink) {
		if key != "" && value != "" {
			s.headers[key] = value
		}
	}
}

// WithRequestTimeout bounds a single POST. The dispatcher's send timeout still
// bounds the whole Send including retries.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries enables up to n retries of temporary failures using strategy
// (DefaultBackoff when nil).
func WithRetries(n int, strategy BackoffStrategy) HTTPOption {
	return func(s *HTTPSink) {
		if n < 0 {
			n = 0
		}
		s.maxRetries = n
		if strategy != nil {
			s.backoff = strategy
		}
	}
}

// WithCircuitBreaker fails sends fast while the endpoint is known to be down.
func WithCircuitBreaker(cb *CircuitBreaker) HTTPOption {
	return func(s *HTTPSink) {
		s.breaker = cb
	}
}

// WithHTTPLogger sets the logger for per-attempt diagnostics.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPSink validates endpoint and returns a sink that makes one attempt per batch
// unless WithRetries is given.
func NewHTTPSink(endpoint string, opts ...HTTPOption) (*HTTPSink, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	s := &HTTPSink{
		endpoint: endpoint,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "usagekit-shareusage/1.0",
		headers:   make(map[string]string),
		timeout:   10 * time.Second,
		backoff:   DefaultBackoff(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = NewPacketBuilder()
	}
	return s, nil
}

// Name identifies the sink in logs.
func (s *HTTPSink) Name() string { return "http" }

// Send encodes batch once and posts it, retrying temporary failures if configured.
func (s *HTTPSink) Send(ctx context.Context, batch shareusage.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	var body bytes.Buffer
	if err := s.builder.Build(batch).EncodeGzip(&body); err != nil {
		return err
	}
	payload := body.Bytes()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(s.backoff.NextInterval(attempt)):
			}
		}

		if s.breaker != nil && !s.breaker.Allow() {
			return ErrCircuitOpen
		}

		status, err := s.post(ctx, payload)
		if s.breaker != nil {
			s.breaker.Record(err)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		s.logger.DebugContext(ctx, "usage packet delivery attempt failed",
			logger.Endpoint(s.endpoint),
			logger.Attempt(attempt+1),
			logger.BatchSize(batch.Len()),
			logger.Error(err),
		)

		if isPermanent(status) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.maxRetries+1, lastErr)
}

func (s *HTTPSink) post(ctx context.Context, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Bounded read keeps error messages useful without trusting the endpoint.
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.ReplaceAll(strings.TrimSpace(string(msg)), "\n", " ")
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		if text != "" {
			return resp.StatusCode, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, text)
		}
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// isPermanent treats client errors as final, except the ones that signal a
// transient condition on the server side.
func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidEndpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidEndpoint)
	}
	return nil
}
