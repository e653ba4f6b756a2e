package logger

import (
	"log/slog"
	"time"
)

// Error records err under the key "error". A nil error yields an empty Attr,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the emitting component under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// BatchSize records the number of records in a batch.
func BatchSize(n int) slog.Attr {
	return slog.Int("batch_size", n)
}

// Duration records an elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Sink records the sink name a batch was handed to.
func Sink(name string) slog.Attr {
	return slog.String("sink", name)
}

// Endpoint records a remote URL or bucket location.
func Endpoint(url string) slog.Attr {
	return slog.String("endpoint", url)
}

// Attempt records the 1-based delivery attempt.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// SessionID records the packet session identifier.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}
