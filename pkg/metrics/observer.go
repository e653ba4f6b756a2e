package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// Observer counts records and batches flowing through a ShareUsage instance.
type Observer struct {
	submitted     prometheus.Counter
	skipped       *prometheus.CounterVec
	dropped       prometheus.Counter
	batchesSent   prometheus.Counter
	batchesFailed prometheus.Counter
	recordsSent   prometheus.Counter
	queueLength   prometheus.Gauge
	sendDuration  *prometheus.HistogramVec
	batchSize     prometheus.Histogram
}

var _ shareusage.Observer = (*Observer)(nil)

// Option configures an Observer.
type Option func(*options)

type options struct {
	namespace   string
	constLabels prometheus.Labels
}

// WithNamespace replaces the default "usagekit" namespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithConstLabels attaches fixed labels, e.g. the service name, to every metric.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) { o.constLabels = labels }
}

// NewObserver creates the metrics and registers them with reg.
// Registering twice against the same registry panics, like promauto.
func NewObserver(reg prometheus.Registerer, opts ...Option) *Observer {
	o := options{namespace: "usagekit"}
	for _, opt := range opts {
		opt(&o)
	}

	f := promauto.With(reg)
	const subsystem = "shareusage"

	return &Observer{
		submitted: f.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "records_submitted_total",
			Help:        "Records accepted into the batch buffer",
			ConstLabels: o.constLabels,
		}),
		// Labels: reason (sampled_out, repeat, empty)
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "records_skipped_total",
			Help:        "Records not shared, by reason",
			ConstLabels: o.constLabels,
		}, []string{"reason"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "records_dropped_total",
			Help:        "Records rejected because the queue was full",
			ConstLabels: o.constLabels,
		}),
		batchesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "batches_sent_total",
			Help:        "Batches delivered to the sink",
			ConstLabels: o.constLabels,
		}),
		batchesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "batches_failed_total",
			Help:        "Batches the sink failed to deliver and that were discarded",
			ConstLabels: o.constLabels,
		}),
		recordsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "records_sent_total",
			Help:        "Records contained in delivered batches",
			ConstLabels: o.constLabels,
		}),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "queue_length",
			Help:        "Records currently buffered",
			ConstLabels: o.constLabels,
		}),
		// Labels: status (success, failure)
		sendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "send_duration_seconds",
			Help:        "Time spent in the sink per batch",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: o.constLabels,
		}, []string{"status"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Subsystem:   subsystem,
			Name:        "batch_size",
			Help:        "Records per dispatched batch",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: o.constLabels,
		}),
	}
}

func (o *Observer) RecordSubmitted() { o.submitted.Inc() }

func (o *Observer) RecordSkipped(reason shareusage.SkipReason) {
	o.skipped.WithLabelValues(string(reason)).Inc()
}

func (o *Observer) RecordDropped(error) { o.dropped.Inc() }

func (o *Observer) BatchSent(size int, d time.Duration) {
	o.batchesSent.Inc()
	o.recordsSent.Add(float64(size))
	o.batchSize.Observe(float64(size))
	o.sendDuration.WithLabelValues("success").Observe(d.Seconds())
}

func (o *Observer) BatchFailed(size int, d time.Duration, _ error) {
	o.batchesFailed.Inc()
	o.batchSize.Observe(float64(size))
	o.sendDuration.WithLabelValues("failure").Observe(d.Seconds())
}

func (o *Observer) QueueLength(n int) { o.queueLength.Set(float64(n)) }

// WriteText gathers g and writes every metric family in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
