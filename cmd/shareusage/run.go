package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/usagekit/pkg/config"
	"github.com/dmitrymomot/usagekit/pkg/evidence"
	"github.com/dmitrymomot/usagekit/pkg/logger"
	"github.com/dmitrymomot/usagekit/pkg/metrics"
	"github.com/dmitrymomot/usagekit/pkg/redis"
	"github.com/dmitrymomot/usagekit/pkg/shareusage"
	"github.com/dmitrymomot/usagekit/pkg/sink"
)

// version is stamped into every packet.
var version = "dev"

// appConfig groups every environment-driven setting of the command.
type appConfig struct {
	ShareUsage shareusage.Config
	Logger     logger.Config
	Redis      redis.Config
	S3         sink.S3Config
}

type runOptions struct {
	evidencePath string
	records      int
	minEntries   int
	share        float64
	usageFrom    string
	endpoint     string
	dryRun       bool
	s3Bucket     string
	printMetrics bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process evidence records from a YAML file and share them",
		Example: `  shareusage run --evidence 20000-evidence-records.yml --records 100 --dry-run
  shareusage run --evidence evidence.yml --endpoint https://usage.example.com/new.ashx --usage-from Acme`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg appConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			applyFlags(cmd, &cfg, opts)

			log := logger.New(
				logger.WithConfig(cfg.Logger),
				logger.WithOutput(cmd.ErrOrStderr()),
			)

			stats, err := run(cmd.Context(), cmd.OutOrStdout(), log, cfg, opts)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.evidencePath, "evidence", "", "YAML file with one evidence document per record")
	f.IntVar(&opts.records, "records", 100, "maximum number of records to process")
	f.IntVar(&opts.minEntries, "min-entries", 0, "records per batch (overrides SHARE_USAGE_MIN_ENTRIES)")
	f.Float64Var(&opts.share, "share", 0, "fraction of records to share, 0..1 (overrides SHARE_USAGE_PERCENTAGE)")
	f.StringVar(&opts.usageFrom, "usage-from", "", "identifies the sender (overrides SHARE_USAGE_FROM)")
	f.StringVar(&opts.endpoint, "endpoint", "", "collection endpoint URL (overrides SHARE_USAGE_URL)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "write packets to stdout instead of sending them")
	f.StringVar(&opts.s3Bucket, "s3-bucket", "", "also archive packets to this bucket (overrides S3_BUCKET)")
	f.BoolVar(&opts.printMetrics, "metrics", false, "print Prometheus metrics after the run")
	_ = cmd.MarkFlagRequired("evidence")
	cmd.MarkFlagsMutuallyExclusive("endpoint", "dry-run")

	return cmd
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, cfg *appConfig, opts runOptions) {
	f := cmd.Flags()
	if f.Changed("min-entries") {
		cfg.ShareUsage.MinimumEntriesPerMessage = opts.minEntries
		if cfg.ShareUsage.MaximumQueueSize <= opts.minEntries {
			cfg.ShareUsage.MaximumQueueSize = opts.minEntries * 10
		}
	}
	if f.Changed("share") {
		cfg.ShareUsage.SharePercentage = opts.share
	}
	if f.Changed("usage-from") {
		cfg.ShareUsage.UsageFrom = opts.usageFrom
	}
	if f.Changed("endpoint") {
		cfg.ShareUsage.Endpoint = opts.endpoint
	}
	if f.Changed("s3-bucket") {
		cfg.S3.Bucket = opts.s3Bucket
	}
}

func run(ctx context.Context, out io.Writer, log *slog.Logger, cfg appConfig, opts runOptions) (shareusage.Stats, error) {
	file, err := os.Open(opts.evidencePath)
	if err != nil {
		return shareusage.Stats{}, fmt.Errorf("open evidence file: %w", err)
	}
	defer func() { _ = file.Close() }()

	builder := sink.NewPacketBuilder(sink.WithProduct("usagekit", version))
	target, err := buildSink(ctx, out, log, cfg, opts, builder)
	if err != nil {
		return shareusage.Stats{}, err
	}

	reg := prometheus.NewRegistry()
	suOpts := []shareusage.Option{
		shareusage.WithLogger(log),
		shareusage.WithObserver(metrics.NewObserver(reg)),
	}

	if cfg.Redis.Enabled() && cfg.ShareUsage.RepeatEvidenceInterval > 0 {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return shareusage.Stats{}, err
		}
		defer func() { _ = client.Close() }()
		suOpts = append(suOpts, shareusage.WithTracker(
			redis.NewTracker(client, cfg.Redis, cfg.ShareUsage.RepeatEvidenceInterval),
		))
	}

	su, err := shareusage.New(cfg.ShareUsage, target, suOpts...)
	if err != nil {
		return shareusage.Stats{}, err
	}

	log.InfoContext(ctx, "starting usage sharing",
		slog.Int("min_entries", cfg.ShareUsage.MinimumEntriesPerMessage),
		slog.Float64("share_percentage", cfg.ShareUsage.SharePercentage),
		slog.Int("records", opts.records),
		logger.SessionID(builder.SessionID()),
	)

	processed, procErr := processFile(ctx, log, su, evidence.NewYAMLSource(file), opts.records)
	log.InfoContext(ctx, "finished processing evidence", slog.Int("records", processed))

	// Close with a fresh context so an interrupt still flushes what is buffered.
	if err := su.Close(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, shareusage.ErrShutdownTimeout) {
		return su.Stats(), err
	}

	if opts.printMetrics {
		if err := metrics.WriteText(out, reg); err != nil {
			return su.Stats(), err
		}
	}
	return su.Stats(), procErr
}

func buildSink(ctx context.Context, out io.Writer, log *slog.Logger, cfg appConfig, opts runOptions, builder *sink.PacketBuilder) (shareusage.Sink, error) {
	var sinks []shareusage.Sink

	switch {
	case opts.dryRun:
		sinks = append(sinks, sink.NewWriterSink(out, builder))
	case cfg.ShareUsage.Endpoint != "":
		httpSink, err := sink.NewHTTPSink(cfg.ShareUsage.Endpoint,
			sink.WithPacketBuilder(builder),
			sink.WithHTTPLogger(log),
			sink.WithRetries(2, nil),
			sink.WithCircuitBreaker(sink.NewCircuitBreaker(0, 0, 0)),
		)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, httpSink)
	default:
		return nil, errors.New("an endpoint is required unless --dry-run is set")
	}

	if cfg.S3.Bucket != "" {
		s3Sink, err := sink.NewS3Sink(ctx, cfg.S3, sink.WithS3PacketBuilder(builder))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sink.Multi(sinks...), nil
}

// processFile feeds up to limit records from src into su and returns how many were read.
func processFile(ctx context.Context, log *slog.Logger, su *shareusage.ShareUsage, src *evidence.YAMLSource, limit int) (int, error) {
	count := 0
	for count < limit {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, err
		}

		ev = evidence.FilterPrefix(ev, evidence.PrefixHeader)
		if _, ok := ev[evidence.KeyClientIP]; !ok {
			// Recorded evidence has no client address, and repeat tracking keys on it.
			ev[evidence.KeyClientIP] = randomIP()
		}

		if err := su.Process(ctx, ev); err != nil && !errors.Is(err, shareusage.ErrCapacityExceeded) {
			return count, err
		}

		count++
		if count%100 == 0 {
			log.DebugContext(ctx, "processed evidence records", slog.Int("records", count))
		}
	}
	return count, nil
}

func randomIP() string {
	var b [4]byte
	for i := range b {
		b[i] = byte(rand.IntN(256))
	}
	b[0] = max(b[0], 1)
	return netip.AddrFrom4(b).String()
}

func printStats(w io.Writer, s shareusage.Stats) {
	fmt.Fprintf(w, "processed=%d buffered=%d sampled_out=%d repeats=%d empty=%d dropped=%d\n",
		s.Processed, s.Buffered, s.SampledOut, s.Repeats, s.Empty, s.Dropped)
	fmt.Fprintf(w, "batches_sent=%d batches_failed=%d records_sent=%d queued=%d\n",
		s.BatchesSent, s.BatchesFailed, s.RecordsSent, s.Queued)
}
