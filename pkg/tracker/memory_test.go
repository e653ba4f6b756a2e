package tracker_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usagekit/pkg/tracker"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryTracker_Track(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("suppresses repeats within interval", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: time.Unix(0, 0)}
		tr := tracker.NewMemoryTracker(time.Minute, tracker.WithClock(clock.Now), tracker.WithCleanupInterval(0))
		defer tr.Close()

		fresh, err := tr.Track(ctx, "a")
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = tr.Track(ctx, "a")
		require.NoError(t, err)
		assert.False(t, fresh)

		fresh, err = tr.Track(ctx, "b")
		require.NoError(t, err)
		assert.True(t, fresh, "different key is independent")
	})

	t.Run("shares again after interval", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: time.Unix(0, 0)}
		tr := tracker.NewMemoryTracker(time.Minute, tracker.WithClock(clock.Now), tracker.WithCleanupInterval(0))
		defer tr.Close()

		fresh, _ := tr.Track(ctx, "a")
		require.True(t, fresh)

		clock.Advance(time.Minute)
		fresh, err := tr.Track(ctx, "a")
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("zero interval never suppresses", func(t *testing.T) {
		t.Parallel()
		tr := tracker.NewMemoryTracker(0, tracker.WithCleanupInterval(0))
		defer tr.Close()

		for range 3 {
			fresh, err := tr.Track(ctx, "a")
			require.NoError(t, err)
			assert.True(t, fresh)
		}
		assert.Equal(t, 0, tr.Len())
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()
		tr := tracker.NewMemoryTracker(time.Minute, tracker.WithCleanupInterval(0))
		defer tr.Close()

		_, err := tr.Track(ctx, "")
		assert.ErrorIs(t, err, tracker.ErrEmptyKey)
	})

	t.Run("concurrent callers see one fresh result per key", func(t *testing.T) {
		t.Parallel()
		tr := tracker.NewMemoryTracker(time.Hour, tracker.WithCleanupInterval(0))
		defer tr.Close()

		var fresh atomic.Int64
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := tr.Track(ctx, "same"); ok {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), fresh.Load())
	})
}

func TestMemoryTracker_Sweep(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := tracker.NewMemoryTracker(time.Minute, tracker.WithClock(clock.Now), tracker.WithCleanupInterval(0))
	defer tr.Close()

	for i := range 5 {
		_, err := tr.Track(context.Background(), fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, tr.Len())

	clock.Advance(30 * time.Second)
	tr.Sweep()
	assert.Equal(t, 5, tr.Len())

	clock.Advance(30 * time.Second)
	tr.Sweep()
	assert.Equal(t, 0, tr.Len())
}

func TestMemoryTracker_BackgroundCleanup(t *testing.T) {
	t.Parallel()
	tr := tracker.NewMemoryTracker(10*time.Millisecond, tracker.WithCleanupInterval(5*time.Millisecond))
	defer tr.Close()

	_, err := tr.Track(context.Background(), "k")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)

	tr.Close()
	tr.Close()
}
