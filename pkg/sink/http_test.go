package sink_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usagekit/pkg/sink"
)

func TestNewHTTPSink_ValidatesEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "ftp://example.com", "https://", "://bad"} {
		_, err := sink.NewHTTPSink(endpoint)
		assert.ErrorIs(t, err, sink.ErrInvalidEndpoint, endpoint)
	}

	s, err := sink.NewHTTPSink("https://usage.example.com/new.ashx")
	require.NoError(t, err)
	assert.Equal(t, "http", s.Name())
}

func TestHTTPSink_Send(t *testing.T) {
	t.Parallel()

	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		raw, err := io.ReadAll(zr)
		assert.NoError(t, err)
		body = string(raw)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := sink.NewHTTPSink(server.URL,
		sink.WithUserAgent("test-agent"),
		sink.WithHeader("X-Api-Key", "secret"),
		sink.WithPacketBuilder(sink.NewPacketBuilder(sink.WithSessionID("http-session"))),
	)
	require.NoError(t, err)

	err = s.Send(context.Background(), batchOf(
		map[string]string{"header.user-agent": "A"},
		map[string]string{"header.user-agent": "B"},
	))
	require.NoError(t, err)

	assert.Contains(t, body, "<SessionId>http-session</SessionId>")
	assert.Less(t, strings.Index(body, ">A<"), strings.Index(body, ">B<"), "records keep batch order")
}

func TestHTTPSink_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	s, err := sink.NewHTTPSink(server.URL)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), nil))
	assert.Zero(t, calls.Load())
}

func TestHTTPSink_SingleAttemptByDefault(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s, err := sink.NewHTTPSink(server.URL)
	require.NoError(t, err)

	err = s.Send(context.Background(), batchOf(map[string]string{"header.a": "b"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSink_RetriesTemporaryFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s, err := sink.NewHTTPSink(server.URL, sink.WithRetries(3, sink.FixedBackoff{Interval: time.Millisecond}))
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), batchOf(map[string]string{"header.a": "b"})))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSink_PermanentFailureStopsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad packet", http.StatusBadRequest)
	}))
	defer server.Close()

	s, err := sink.NewHTTPSink(server.URL, sink.WithRetries(5, sink.FixedBackoff{Interval: time.Millisecond}))
	require.NoError(t, err)

	err = s.Send(context.Background(), batchOf(map[string]string{"header.a": "b"}))
	assert.ErrorIs(t, err, sink.ErrPermanentFailure)
	assert.Contains(t, err.Error(), "bad packet")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSink_RequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s, err := sink.NewHTTPSink(server.URL, sink.WithRequestTimeout(20*time.Millisecond))
	require.NoError(t, err)

	err = s.Send(context.Background(), batchOf(map[string]string{"header.a": "b"}))
	assert.ErrorIs(t, err, sink.ErrTimeout)
}

func TestHTTPSink_CircuitBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := sink.NewCircuitBreaker(2, 1, time.Hour)
	s, err := sink.NewHTTPSink(server.URL, sink.WithCircuitBreaker(cb))
	require.NoError(t, err)

	batch := batchOf(map[string]string{"header.a": "b"})
	for range 2 {
		assert.ErrorIs(t, s.Send(context.Background(), batch), sink.ErrDeliveryFailed)
	}
	assert.Equal(t, sink.CircuitOpen, cb.State())

	assert.ErrorIs(t, s.Send(context.Background(), batch), sink.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
