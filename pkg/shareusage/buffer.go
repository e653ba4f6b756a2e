package shareusage

import "sync"

// State is the lifecycle stage of a Buffer.
type State int

const (
	// StateAccepting is the default: submissions are buffered.
	StateAccepting State = iota
	// StateDraining rejects submissions while the final batch is flushed.
	StateDraining
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Buffer accumulates records until a batch is ready.
// All methods share one mutex, so a record is never sent twice or lost
// between concurrent Submit and drain calls.
//
// Drained records keep counting toward capacity until Release is called for
// them, so a slow sink makes Submit fail instead of letting batches pile up
// behind the dispatcher.
type Buffer struct {
	mu      sync.Mutex
	records []Record
	pending int // drained but not yet released
	state   State

	minEntries int
	maxSize    int
}

// NewBuffer creates a buffer that reports ready at minEntries and holds at most
// maxSize records, buffered and pending together.
func NewBuffer(minEntries, maxSize int) *Buffer {
	return &Buffer{
		records:    make([]Record, 0, minEntries),
		minEntries: minEntries,
		maxSize:    maxSize,
	}
}

// Submit appends r. It never waits on anything but the buffer mutex.
// ErrCapacityExceeded is returned while buffered plus pending records reach maxSize.
func (b *Buffer) Submit(r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateAccepting {
		return ErrClosed
	}
	if len(b.records)+b.pending >= b.maxSize {
		return ErrCapacityExceeded
	}
	b.records = append(b.records, r)
	return nil
}

// DrainIfReady removes and returns every buffered record once at least
// minEntries are held. The records stay pending until released.
func (b *Buffer) DrainIfReady() (Batch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) < b.minEntries {
		return nil, false
	}
	return b.takeLocked(), true
}

// DrainAll removes and returns every buffered record. The batch is empty, not nil, when
// nothing is buffered. The records stay pending until released.
func (b *Buffer) DrainAll() Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return Batch{}
	}
	return b.takeLocked()
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Release gives back capacity for n drained records whose batch was sent or discarded.
func (b *Buffer) Release(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.pending = max(b.pending-n, 0)
	b.mu.Unlock()
}

// Pending returns the number of drained records not yet released.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// State returns the current lifecycle stage.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// beginDrain moves an accepting buffer to draining. Reports whether the transition happened.
func (b *Buffer) beginDrain() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateAccepting {
		return false
	}
	b.state = StateDraining
	return true
}

func (b *Buffer) close() {
	b.mu.Lock()
	b.state = StateClosed
	b.mu.Unlock()
}

func (b *Buffer) takeLocked() Batch {
	batch := Batch(b.records)
	b.pending += len(batch)
	b.records = make([]Record, 0, b.minEntries)
	return batch
}
