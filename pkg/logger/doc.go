// Package logger builds log/slog loggers for usagekit components.
//
// Components never create their own handlers: they accept a *slog.Logger through an
// option and fall back to slog.Default(). Binaries construct one logger with New, either
// from explicit options or from a Config loaded from the environment:
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.New(logger.WithConfig(cfg), logger.WithAttr(logger.Component("cli")))
//	logger.SetAsDefault(log)
//
// The attribute helpers (BatchSize, Endpoint, Error, ...) keep key names consistent
// across packages so log queries do not depend on which component emitted a line.
package logger
