package shareusage_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

func TestBuffer_DrainIfReady(t *testing.T) {
	t.Parallel()

	const k = 5
	b := shareusage.NewBuffer(k, 100)

	for i := range k - 1 {
		require.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(i))))
		_, ok := b.DrainIfReady()
		assert.False(t, ok, "not ready below the minimum")
	}

	require.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(k))))
	batch, ok := b.DrainIfReady()
	require.True(t, ok)
	assert.Equal(t, k, batch.Len())
	assert.Zero(t, b.Len(), "buffer is empty right after the drain")

	_, ok = b.DrainIfReady()
	assert.False(t, ok)
}

func TestBuffer_PreservesOrder(t *testing.T) {
	t.Parallel()

	b := shareusage.NewBuffer(3, 10)
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, b.Submit(shareusage.NewRecord(map[string]string{"header.id": id})))
	}

	batch, ok := b.DrainIfReady()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, ids(batch))
}

func TestBuffer_CapacityExceeded(t *testing.T) {
	t.Parallel()

	b := shareusage.NewBuffer(10, 3)
	for i := range 3 {
		require.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(i))))
	}

	err := b.Submit(shareusage.NewRecord(headerRecord(4)))
	assert.ErrorIs(t, err, shareusage.ErrCapacityExceeded)
	assert.Equal(t, 3, b.Len(), "the rejected record is not held")

	all := b.DrainAll()
	assert.Equal(t, 3, all.Len())
	assert.Zero(t, b.Len())
	assert.Equal(t, 3, b.Pending())
	assert.ErrorIs(t, b.Submit(shareusage.NewRecord(headerRecord(5))), shareusage.ErrCapacityExceeded,
		"drained records count until their batch is released")

	b.Release(all.Len())
	assert.Zero(t, b.Pending())
	assert.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(6))), "space frees up after a release")
}

func TestBuffer_CapacityCountsPendingBatches(t *testing.T) {
	t.Parallel()

	b := shareusage.NewBuffer(2, 4)
	var batches []shareusage.Batch
	for i := range 4 {
		require.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(i))))
		if batch, ok := b.DrainIfReady(); ok {
			batches = append(batches, batch)
		}
	}
	require.Len(t, batches, 2)
	assert.Zero(t, b.Len())
	assert.Equal(t, 4, b.Pending())

	assert.ErrorIs(t, b.Submit(shareusage.NewRecord(headerRecord(4))), shareusage.ErrCapacityExceeded)

	b.Release(batches[0].Len())
	assert.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(5))))
	assert.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(6))))
	assert.ErrorIs(t, b.Submit(shareusage.NewRecord(headerRecord(7))), shareusage.ErrCapacityExceeded)

	b.Release(100)
	assert.Zero(t, b.Pending(), "over-release never goes negative")
}

func TestBuffer_DrainAll(t *testing.T) {
	t.Parallel()

	b := shareusage.NewBuffer(10, 20)
	empty := b.DrainAll()
	assert.NotNil(t, empty)
	assert.Zero(t, empty.Len())

	for i := range 7 {
		require.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(i))))
	}
	assert.Equal(t, 7, b.DrainAll().Len())
	assert.Zero(t, b.Len())
}

func TestBuffer_State(t *testing.T) {
	t.Parallel()

	b := shareusage.NewBuffer(1, 2)
	assert.Equal(t, shareusage.StateAccepting, b.State())
	assert.Equal(t, "accepting", b.State().String())
	assert.Equal(t, "draining", shareusage.StateDraining.String())
	assert.Equal(t, "closed", shareusage.StateClosed.String())
	assert.Equal(t, "unknown", shareusage.State(42).String())
}

func TestBuffer_ConcurrentSubmitAndDrain(t *testing.T) {
	t.Parallel()

	const (
		writers   = 8
		perWriter = 500
	)
	b := shareusage.NewBuffer(7, writers*perWriter+1)

	var (
		mu      sync.Mutex
		drained int
		wg      sync.WaitGroup
	)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				assert.NoError(t, b.Submit(shareusage.NewRecord(headerRecord(w*perWriter+i))))
				if batch, ok := b.DrainIfReady(); ok {
					mu.Lock()
					drained += batch.Len()
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	drained += b.DrainAll().Len()
	assert.Equal(t, writers*perWriter, drained, "no record is lost or sent twice")
}
