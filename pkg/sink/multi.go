package sink

import (
	"context"
	"errors"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// Multi sends every batch to all sinks in order, e.g. the collection endpoint plus an
// S3 archive. All sinks are attempted; their errors are joined.
func Multi(sinks ...shareusage.Sink) shareusage.Sink {
	return shareusage.SinkFunc(func(ctx context.Context, batch shareusage.Batch) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Send(ctx, batch); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
