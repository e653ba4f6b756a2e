package shareusage_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// recordingSink keeps every batch it receives. An optional gate blocks Send until closed.
type recordingSink struct {
	mu      sync.Mutex
	batches []shareusage.Batch
	err     error
	gate    chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, batch shareusage.Batch) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *recordingSink) Batches() []shareusage.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]shareusage.Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *recordingSink) Records() int {
	n := 0
	for _, b := range s.Batches() {
		n += b.Len()
	}
	return n
}

func testConfig(minEntries, maxQueue int, share float64) shareusage.Config {
	cfg := shareusage.DefaultConfig()
	cfg.MinimumEntriesPerMessage = minEntries
	cfg.MaximumQueueSize = maxQueue
	cfg.SharePercentage = share
	cfg.RepeatEvidenceInterval = 0
	return cfg
}

func headerRecord(i int) map[string]string {
	return map[string]string{
		"header.user-agent": fmt.Sprintf("agent-%d", i),
		"server.client-ip":  "203.0.113.1",
	}
}

func ids(batch shareusage.Batch) []string {
	out := make([]string, 0, batch.Len())
	for _, r := range batch {
		v, _ := r.Get("header.id")
		out = append(out, v)
	}
	return out
}
