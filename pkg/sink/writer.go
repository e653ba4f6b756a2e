package sink

import (
	"context"
	"io"
	"sync"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// WriterSink writes each packet as an XML document to w, one per batch.
// Writes are serialized so concurrent dispatches do not interleave.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	builder *PacketBuilder
}

// NewWriterSink writes packets to w using builder (a fresh one when nil).
func NewWriterSink(w io.Writer, builder *PacketBuilder) *WriterSink {
	if builder == nil {
		builder = NewPacketBuilder()
	}
	return &WriterSink{w: w, builder: builder}
}

// Name identifies the sink in logs.
func (s *WriterSink) Name() string { return "writer" }

// Send writes the batch followed by a newline.
func (s *WriterSink) Send(ctx context.Context, batch shareusage.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.builder.Build(batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := p.Encode(s.w); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, "\n")
	return err
}
