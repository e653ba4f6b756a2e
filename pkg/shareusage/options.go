package shareusage

import "log/slog"

// Option configures ShareUsage during construction.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
	sampler  Sampler
	tracker  Tracker
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a metrics observer, e.g. the Prometheus one from pkg/metrics.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSampler replaces the percentage sampler built from Config.SharePercentage.
func WithSampler(s Sampler) Option {
	return func(o *options) {
		if s != nil {
			o.sampler = s
		}
	}
}

// WithTracker replaces the in-memory repeat-evidence tracker, e.g. with a Redis-backed one
// shared by several instances. Ignored when Config.RepeatEvidenceInterval is zero.
func WithTracker(t Tracker) Option {
	return func(o *options) {
		if t != nil {
			o.tracker = t
		}
	}
}
