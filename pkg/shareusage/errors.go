package shareusage

import "errors"

var (
	// ErrCapacityExceeded indicates the buffer already holds MaximumQueueSize records.
	// The record is dropped; the core never retries.
	ErrCapacityExceeded = errors.New("shareusage: queue capacity exceeded")

	// ErrClosed indicates the buffer no longer accepts records (draining or closed).
	ErrClosed = errors.New("shareusage: closed")

	// ErrShutdownTimeout indicates in-flight sends did not finish within the grace period.
	ErrShutdownTimeout = errors.New("shareusage: shutdown timed out waiting for in-flight batches")

	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("shareusage: invalid configuration")

	// ErrNilSink indicates New was called without a sink.
	ErrNilSink = errors.New("shareusage: sink cannot be nil")
)
