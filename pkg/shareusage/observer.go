package shareusage

import "time"

// SkipReason explains why a processed record was not buffered.
type SkipReason string

const (
	SkipSampledOut SkipReason = "sampled_out"
	SkipRepeat     SkipReason = "repeat"
	SkipEmpty      SkipReason = "empty"
)

// Observer receives lifecycle events for metrics. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	RecordSubmitted()
	RecordSkipped(reason SkipReason)
	RecordDropped(err error)
	BatchSent(size int, duration time.Duration)
	BatchFailed(size int, duration time.Duration, err error)
	QueueLength(n int)
}

type nopObserver struct{}

func (nopObserver) RecordSubmitted() {}
func (nopObserver) RecordSkipped(SkipReason) {}
func (nopObserver) RecordDropped(error) {}
func (nopObserver) BatchSent(int, time.Duration) {}
func (nopObserver) BatchFailed(int, time.Duration, error) {}
func (nopObserver) QueueLength(int) {}
