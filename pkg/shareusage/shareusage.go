package shareusage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/usagekit/pkg/logger"
	"github.com/dmitrymomot/usagekit/pkg/tracker"
)

// ShareUsage filters, samples and batches evidence records and sends ready batches
// to a Sink in the background. It is safe for concurrent use.
type ShareUsage struct {
	cfg        Config
	filter     *EvidenceFilter
	sampler    Sampler
	tracker    Tracker
	buffer     *Buffer
	dispatcher *Dispatcher
	logger     *slog.Logger
	observer   Observer

	ownTracker *tracker.MemoryTracker // created by New, stopped by Close

	// ProcessRecord holds mu for reading from the closed check until its batch is
	// handed to the dispatcher; Close takes it for writing to flip closed.
	mu     sync.RWMutex
	closed bool

	stats counters
}

// Stats is a point-in-time snapshot of processing counters.
type Stats struct {
	Processed     uint64 // Records passed to Process
	Buffered      uint64 // Records accepted by the buffer
	SampledOut    uint64
	Repeats       uint64
	Empty         uint64 // Records with no shareable evidence
	Dropped       uint64 // Records rejected because the queue was full
	BatchesSent   uint64
	BatchesFailed uint64
	RecordsSent   uint64
	Queued        int // Records waiting for a batch
	Pending       int // Records handed to the dispatcher and not yet sent
}

type counters struct {
	processed, buffered, sampledOut, repeats, empty, dropped atomic.Uint64
	batchesSent, batchesFailed, recordsSent                  atomic.Uint64
}

// New validates cfg and wires the sharing pipeline around sink.
func New(cfg Config, sink Sink, opts ...Option) (*ShareUsage, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options{
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &ShareUsage{
		cfg:      cfg,
		filter:   NewEvidenceFilter(cfg),
		sampler:  o.sampler,
		buffer:   NewBuffer(cfg.MinimumEntriesPerMessage, cfg.MaximumQueueSize),
		logger:   o.logger.With(logger.Component("shareusage")),
		observer: o.observer,
	}
	if s.sampler == nil {
		s.sampler = NewPercentageSampler(cfg.SharePercentage)
	}

	if cfg.RepeatEvidenceInterval > 0 {
		s.tracker = o.tracker
		if s.tracker == nil {
			s.ownTracker = tracker.NewMemoryTracker(cfg.RepeatEvidenceInterval)
			s.tracker = s.ownTracker
		}
	}

	s.dispatcher = NewDispatcher(sink,
		WithMaxConcurrentSends(cfg.MaxConcurrentSends),
		WithSendTimeout(cfg.SendTimeout),
		WithDispatcherLogger(s.logger),
		WithDispatcherObserver(statsObserver{c: &s.stats, next: s.observer}),
		WithSendDone(s.buffer.Release),
	)

	return s, nil
}

// Process shares the evidence in m, subject to filtering, repeat tracking and sampling.
// The map is copied; the caller may reuse it.
//
// Keys are expected in "prefix.name" form, e.g. "header.user-agent". Unless
// Config.ShareAllEvidence is set, only header, cookie, query and server evidence is
// shared; see EvidenceFilter. A record left with no evidence is skipped.
func (s *ShareUsage) Process(ctx context.Context, m map[string]string) error {
	return s.ProcessRecord(ctx, NewRecord(m))
}

// ProcessRecord returns nil when the record was buffered or deliberately skipped.
// ErrCapacityExceeded means the record was dropped because Config.MaximumQueueSize
// records are buffered or still being sent; ErrClosed means sharing has stopped.
// It never waits on network I/O unless a remote Tracker is configured.
func (s *ShareUsage) ProcessRecord(ctx context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	s.stats.processed.Add(1)

	r = s.filter.Apply(r)
	if r.Len() == 0 {
		s.skip(SkipEmpty)
		return nil
	}

	if !s.sampler.ShouldShare() {
		s.skip(SkipSampledOut)
		return nil
	}

	if s.tracker != nil {
		fresh, err := s.tracker.Track(ctx, Fingerprint(r))
		switch {
		case err != nil:
			// Fail open: losing dedup is better than losing usage data.
			s.logger.WarnContext(ctx, "repeat evidence check failed, sharing record", logger.Error(err))
		case !fresh:
			s.skip(SkipRepeat)
			return nil
		}
	}

	if err := s.buffer.Submit(r); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.stats.dropped.Add(1)
			s.observer.RecordDropped(err)
			s.logger.DebugContext(ctx, "usage queue full, dropping record",
				slog.Int("max_queue_size", s.cfg.MaximumQueueSize))
		}
		return err
	}
	s.stats.buffered.Add(1)
	s.observer.RecordSubmitted()

	if batch, ok := s.buffer.DrainIfReady(); ok {
		s.dispatcher.Flush(batch)
	}
	s.observer.QueueLength(s.buffer.Len())

	return nil
}

// Close stops accepting records, sends what is buffered and waits for in-flight
// batches up to Config.ShutdownTimeout or ctx, whichever ends first.
// Records already inside ProcessRecord are buffered or flushed before the final
// batch is taken. A timeout is reported as ErrShutdownTimeout and is not fatal.
func (s *ShareUsage) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.dispatcher.Shutdown(ctx, s.buffer)
	if s.ownTracker != nil {
		s.ownTracker.Close()
	}
	s.observer.QueueLength(s.buffer.Len())

	s.logger.InfoContext(ctx, "usage sharing stopped",
		slog.Uint64("batches_sent", s.stats.batchesSent.Load()),
		slog.Uint64("batches_failed", s.stats.batchesFailed.Load()),
		slog.Uint64("records_dropped", s.stats.dropped.Load()),
	)
	return err
}

// Stats returns current counters.
func (s *ShareUsage) Stats() Stats {
	return Stats{
		Processed:     s.stats.processed.Load(),
		Buffered:      s.stats.buffered.Load(),
		SampledOut:    s.stats.sampledOut.Load(),
		Repeats:       s.stats.repeats.Load(),
		Empty:         s.stats.empty.Load(),
		Dropped:       s.stats.dropped.Load(),
		BatchesSent:   s.stats.batchesSent.Load(),
		BatchesFailed: s.stats.batchesFailed.Load(),
		RecordsSent:   s.stats.recordsSent.Load(),
		Queued:        s.buffer.Len(),
		Pending:       s.buffer.Pending(),
	}
}

// Config returns the effective configuration.
func (s *ShareUsage) Config() Config { return s.cfg }

func (s *ShareUsage) skip(reason SkipReason) {
	switch reason {
	case SkipSampledOut:
		s.stats.sampledOut.Add(1)
	case SkipRepeat:
		s.stats.repeats.Add(1)
	case SkipEmpty:
		s.stats.empty.Add(1)
	}
	s.observer.RecordSkipped(reason)
}

// statsObserver counts dispatch results before forwarding to the user's observer.
type statsObserver struct {
	nopObserver
	c    *counters
	next Observer
}

func (o statsObserver) BatchSent(size int, d time.Duration) {
	o.c.batchesSent.Add(1)
	o.c.recordsSent.Add(uint64(size))
	o.next.BatchSent(size, d)
}

func (o statsObserver) BatchFailed(size int, d time.Duration, err error) {
	o.c.batchesFailed.Add(1)
	o.next.BatchFailed(size, d, err)
}
