// Package metrics exports usage sharing activity as Prometheus metrics.
//
// Observer implements shareusage.Observer. Register it with a registry of your choice and
// pass it to shareusage.New:
//
//	reg := prometheus.NewRegistry()
//	obs := metrics.NewObserver(reg)
//	su, err := shareusage.New(cfg, sink, shareusage.WithObserver(obs))
//
// Metrics live under the "usagekit_shareusage" prefix by default; WithNamespace changes the
// first part. WriteText renders a registry in the text exposition format, which the CLI
// uses to print a summary after a run.
package metrics
