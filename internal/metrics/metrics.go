// Package metrics defines the counters and histograms the settlement
// service and HTTP server report.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const Subsystem = "settlement"

// Metrics contains the metrics exposed by the engine's outer layers.
type Metrics struct {
	// Calls submitted, labelled by method and outcome ("ok" or an error kind).
	Calls metrics.Counter
	// Time spent inside the engine per call, labelled by method.
	CallDuration metrics.Histogram
	// Sequence number of the last committed call.
	JournalSeq metrics.Gauge
	// Calls rolled back because the journal append failed.
	JournalFailures metrics.Counter
	// Calls refused by the per-account limiter.
	RateLimited metrics.Counter
	// Events handed to the signal bus, labelled by kind.
	EventsPublished metrics.Counter
	// Bus publishes that failed.
	PublishFailures metrics.Counter
	// Snapshots written to cold storage.
	Snapshots metrics.Counter
	// Records copied to the archive, labelled by kind.
	Archived metrics.Counter
	// HTTP requests served, labelled by method and status code.
	HTTPRequests metrics.Counter
}

// PrometheusMetrics returns Metrics registered with the default Prometheus
// registry. It must be called at most once per process.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Calls: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "calls_total",
			Help:      "Calls submitted to the engine.",
		}, []string{"method", "outcome"}),
		CallDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "call_duration_seconds",
			Help:      "Time spent executing and journalling a call.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"method"}),
		JournalSeq: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "journal_seq",
			Help:      "Sequence number of the last committed call.",
		}, []string{}),
		JournalFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "journal_failures_total",
			Help:      "Calls rolled back because the journal append failed.",
		}, []string{}),
		RateLimited: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "rate_limited_total",
			Help:      "Calls refused by the per-account limiter.",
		}, []string{}),
		EventsPublished: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "events_published_total",
			Help:      "Committed events published to the signal bus.",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "publish_failures_total",
			Help:      "Signal bus publishes that failed.",
		}, []string{}),
		Snapshots: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "snapshots_total",
			Help:      "Snapshots written to cold storage.",
		}, []string{}),
		Archived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "archived_records_total",
			Help:      "Records copied to the archive.",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "code"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Calls:           discard.NewCounter(),
		CallDuration:    discard.NewHistogram(),
		JournalSeq:      discard.NewGauge(),
		JournalFailures: discard.NewCounter(),
		RateLimited:     discard.NewCounter(),
		EventsPublished: discard.NewCounter(),
		PublishFailures: discard.NewCounter(),
		Snapshots:       discard.NewCounter(),
		Archived:        discard.NewCounter(),
		HTTPRequests:    discard.NewCounter(),
	}
}
