package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the handler output format.
type Format string

const (
	// FormatJSON is for log aggregation in production.
	FormatJSON Format = "json"
	// FormatText is for humans at a terminal.
	FormatText Format = "text"
)

// Config is the environment-driven logger setup.
type Config struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`   // debug, info, warn, error
	Format  string `env:"LOG_FORMAT" envDefault:"json"`  // json or text
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"usagekit"`
}

// Option configures logger creation.
type Option func(*options)

type options struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// WithLevel sets the minimum level. Records below it are dropped before any
// context extractor runs.
func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithFormat sets the output format. Panics on unknown formats: a misconfigured logger
// should stop startup, not silently change format.
func WithFormat(f Format) Option {
	return func(o *options) {
		switch f {
		case FormatJSON, FormatText:
			o.format = f
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
	}
}

// WithOutput sets the destination. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithAttr adds static attributes to every record, e.g. a build version.
// Attributes accumulate across calls.
func WithAttr(attrs ...slog.Attr) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// WithContextExtractors injects attributes from the context passed to *Context log calls.
// Extractors run on every record in the order given; nil extractors are skipped.
//
// Example:
//
//	type requestIDKey struct{}
//
//	log := logger.New(logger.WithContextExtractors(
//		logger.FromContextValue("request_id", requestIDKey{}),
//	))
//	log.InfoContext(ctx, "usage batch queued") // carries request_id when ctx has one
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		for _, ex := range extractors {
			if ex != nil {
				o.extractors = append(o.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies per-environment defaults: text at debug level for development,
// JSON at info level otherwise. The service and env names are attached to every record.
func WithEnvironment(env, service string) Option {
	return func(o *options) {
		switch strings.ToLower(env) {
		case "production", "prod", "staging", "stage":
			o.level = slog.LevelInfo
			o.format = FormatJSON
		default:
			o.level = slog.LevelDebug
			o.format = FormatText
		}
		if env != "" {
			o.attrs = append(o.attrs, slog.String("env", env))
		}
		if service != "" {
			o.attrs = append(o.attrs, slog.String("service", service))
		}
	}
}

// WithConfig applies environment defaults first, then the explicit level and format.
// Unparseable values keep the environment default, so a typo in LOG_LEVEL never
// stops the program.
//
// It pairs with pkg/config:
//
//	var cfg logger.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	log := logger.New(logger.WithConfig(cfg), logger.WithOutput(os.Stderr))
func WithConfig(cfg Config) Option {
	return func(o *options) {
		WithEnvironment(cfg.Env, cfg.Service)(o)
		if lvl, ok := ParseLevel(cfg.Level); ok {
			o.level = lvl
		}
		switch Format(strings.ToLower(cfg.Format)) {
		case FormatJSON:
			o.format = FormatJSON
		case FormatText:
			o.format = FormatText
		}
	}
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, bool) {
	var lvl slog.Level
	if s == "" {
		return lvl, false
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, false
	}
	return lvl, true
}

// New creates a logger. Defaults: JSON, info level, stdout.
//
// Options are applied in order, so later ones win. The returned logger runs every
// context extractor on *Context calls and adds the resulting attributes to the
// record, after any attributes set with WithAttr.
//
// Example:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "usagekit"),
//		logger.WithLevel(slog.LevelWarn),
//	)
//	log.Warn("usage queue full", logger.BatchSize(1000))
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}

	var handler slog.Handler
	if o.format == FormatText {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	}
	if len(o.attrs) > 0 {
		handler = handler.WithAttrs(o.attrs)
	}

	return slog.New(newContextHandler(handler, o.extractors))
}

// Discard returns a logger that drops everything. Handy in tests:
//
//	s, err := shareusage.New(cfg, sink, shareusage.WithLogger(logger.Discard()))
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// SetAsDefault installs l as the process-wide slog default.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// FromContextValue builds an extractor that logs ctx.Value(key) under name.
// Contexts without the key add nothing.
func FromContextValue(name string, key any) ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := ctx.Value(key); v != nil {
			return slog.Any(name, v), true
		}
		return slog.Attr{}, false
	}
}
