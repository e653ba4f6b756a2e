package shareusage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/usagekit/pkg/logger"
)

// Sink transmits a batch to the remote collection endpoint.
// The dispatcher calls Send from background goroutines.
type Sink interface {
	Send(ctx context.Context, batch Batch) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch Batch) error

func (f SinkFunc) Send(ctx context.Context, batch Batch) error { return f(ctx, batch) }

// Dispatcher sends batches off the caller's goroutine.
// Failed sends are logged and the batch is discarded.
type Dispatcher struct {
	sink        Sink
	sem         *semaphore.Weighted
	sendTimeout time.Duration
	logger      *slog.Logger
	observer    Observer
	onDone      func(size int)

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // closed when inflight drops to zero
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxConcurrentSends limits how many batches are transmitted at once.
func WithMaxConcurrentSends(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithSendTimeout bounds each Sink.Send call.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithDispatcherLogger sets the logger used to report failed sends.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDispatcherObserver sets the metrics observer.
func WithDispatcherObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithSendDone registers fn to run after every batch send finishes, whether it
// succeeded or not. Wait does not return before fn has returned.
// ShareUsage uses it to release buffer capacity.
func WithSendDone(fn func(size int)) DispatcherOption {
	return func(d *Dispatcher) { d.onDone = fn }
}

// NewDispatcher creates a dispatcher for sink. Panics on a nil sink, like other
// constructors that cannot work without their backend.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	if sink == nil {
		panic(ErrNilSink)
	}

	d := &Dispatcher{
		sink:        sink,
		sem:         semaphore.NewWeighted(1),
		sendTimeout: 30 * time.Second,
		logger:      slog.Default(),
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Flush starts sending batch in the background and returns immediately.
// An empty batch yields an already finished task.
func (d *Dispatcher) Flush(batch Batch) *Task {
	task := newTask(batch.Len())
	if batch.Len() == 0 {
		task.finish(nil)
		return task
	}

	d.track()
	go func() {
		defer d.untrack()
		err := d.send(batch)
		if d.onDone != nil {
			d.onDone(batch.Len())
		}
		task.finish(err)
	}()

	return task
}

// Wait blocks until no sends are in flight or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.inflight == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops buf from accepting records, flushes whatever it holds as a final
// batch and waits for in-flight sends until ctx is done. Sends still running after
// that are abandoned; the buffer is closed either way.
func (d *Dispatcher) Shutdown(ctx context.Context, buf *Buffer) error {
	buf.beginDrain()

	if batch := buf.DrainAll(); batch.Len() > 0 {
		d.logger.DebugContext(ctx, "flushing final usage batch", logger.BatchSize(batch.Len()))
		d.Flush(batch)
	}

	err := d.Wait(ctx)
	buf.close()

	if err != nil {
		d.logger.WarnContext(ctx, "usage sharing shutdown timed out, abandoning in-flight batches",
			logger.Error(err),
			slog.Int("inflight", d.Inflight()),
		)
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, err)
	}
	return nil
}

// Inflight returns the number of batches currently being sent.
func (d *Dispatcher) Inflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

func (d *Dispatcher) send(batch Batch) (err error) {
	// Background context: submitters and shutdown deadlines must not cancel a send midway.
	ctx := context.Background()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shareusage: sink panicked: %v", r)
		}

		duration := time.Since(start)
		if err != nil {
			d.observer.BatchFailed(batch.Len(), duration, err)
			d.logger.Error("failed to send usage batch, discarding",
				logger.BatchSize(batch.Len()),
				logger.Error(err),
				logger.Duration(duration),
			)
			return
		}
		d.observer.BatchSent(batch.Len(), duration)
		d.logger.Debug("usage batch sent",
			logger.BatchSize(batch.Len()),
			logger.Duration(duration),
		)
	}()

	return d.sink.Send(ctx, batch)
}

func (d *Dispatcher) track() {
	d.mu.Lock()
	if d.inflight == 0 {
		d.idle = make(chan struct{})
	}
	d.inflight++
	d.mu.Unlock()
}

func (d *Dispatcher) untrack() {
	d.mu.Lock()
	d.inflight--
	if d.inflight == 0 {
		close(d.idle)
	}
	d.mu.Unlock()
}
