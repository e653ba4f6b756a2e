package shareusage

import "context"

// Task tracks a single batch dispatch running in the background.
type Task struct {
	size int
	err  error
	done chan struct{}
}

func newTask(size int) *Task {
	return &Task{size: size, done: make(chan struct{})}
}

// finish is called exactly once by the dispatcher.
func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Size is the number of records in the dispatched batch.
func (t *Task) Size() int { return t.size }

// Done is closed once the send completed, successfully or not.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the send error once Done is closed, nil before that.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the send completes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
