// Package mftcore implements CoreAPI: the lifecycle, stats, and dispatch
// surface the out-of-scope transport layer (MCP/IPC/HTTP bridge) consumes,
// grounded on the teacher's fs.fileSystem/NewServer lifecycle shape and its
// common.MetricHandle interface-per-concern composition.
package mftcore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricHandle is the injectable instrumentation surface, mirroring the
// teacher's common.MetricHandle split (GCS/Ops/FileCache handles combined
// into one interface so a caller can supply a real backend or a no-op).
type MetricHandle interface {
	RecordBuildDuration(d time.Duration)
	IncFilesProcessed(n uint64)
	RecordQueryLatency(d time.Duration)
	IncJournalApplied(n uint64)
}

type noopMetrics struct{}

// NewNoopMetrics returns a MetricHandle whose methods are all no-ops,
// directly grounded on the teacher's common.NewNoopMetrics/noopMetrics.
func NewNoopMetrics() MetricHandle { return noopMetrics{} }

func (noopMetrics) RecordBuildDuration(time.Duration) {}
func (noopMetrics) IncFilesProcessed(uint64)          {}
func (noopMetrics) RecordQueryLatency(time.Duration)  {}
func (noopMetrics) IncJournalApplied(uint64)          {}

// PrometheusMetrics implements MetricHandle with prometheus/client_golang
// counters and histograms.
type PrometheusMetrics struct {
	buildDuration   prometheus.Histogram
	filesProcessed  prometheus.Counter
	queryLatency    prometheus.Histogram
	journalApplied  prometheus.Counter
}

// NewPrometheusMetrics registers and returns a prometheus-backed
// MetricHandle on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) MetricHandle {
	m := &PrometheusMetrics{
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "mftsearch_build_duration_seconds",
			Help: "Duration of full MFT builds.",
		}),
		filesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mftsearch_files_processed_total",
			Help: "Total files processed across all builds.",
		}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mftsearch_query_latency_seconds",
			Help:    "Query evaluation latency.",
			Buckets: prometheus.DefBuckets,
		}),
		journalApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mftsearch_journal_records_applied_total",
			Help: "Total USN journal records applied.",
		}),
	}
	reg.MustRegister(m.buildDuration, m.filesProcessed, m.queryLatency, m.journalApplied)
	return m
}

func (m *PrometheusMetrics) RecordBuildDuration(d time.Duration) { m.buildDuration.Observe(d.Seconds()) }
func (m *PrometheusMetrics) IncFilesProcessed(n uint64)          { m.filesProcessed.Add(float64(n)) }
func (m *PrometheusMetrics) RecordQueryLatency(d time.Duration)  { m.queryLatency.Observe(d.Seconds()) }
func (m *PrometheusMetrics) IncJournalApplied(n uint64)          { m.journalApplied.Add(float64(n)) }

// OtelMetrics implements MetricHandle with an OpenTelemetry meter,
// mirroring the teacher's otel_metrics.go meter-creation pattern.
type OtelMetrics struct {
	buildDuration  metric.Float64Histogram
	filesProcessed metric.Int64Counter
	queryLatency   metric.Float64Histogram
	journalApplied metric.Int64Counter
}

// NewOtelMetrics builds a MetricHandle from an otel Meter named "mftcore",
// matching the teacher's otel.Meter("fs_op") call shape.
func NewOtelMetrics(meter metric.Meter) (MetricHandle, error) {
	buildDuration, err := meter.Float64Histogram("mftsearch.build.duration")
	if err != nil {
		return nil, err
	}
	filesProcessed, err := meter.Int64Counter("mftsearch.files.processed")
	if err != nil {
		return nil, err
	}
	queryLatency, err := meter.Float64Histogram("mftsearch.query.latency")
	if err != nil {
		return nil, err
	}
	journalApplied, err := meter.Int64Counter("mftsearch.journal.applied")
	if err != nil {
		return nil, err
	}
	return &OtelMetrics{
		buildDuration:  buildDuration,
		filesProcessed: filesProcessed,
		queryLatency:   queryLatency,
		journalApplied: journalApplied,
	}, nil
}

func (m *OtelMetrics) RecordBuildDuration(d time.Duration) {
	m.buildDuration.Record(context.Background(), d.Seconds())
}
func (m *OtelMetrics) IncFilesProcessed(n uint64) {
	m.filesProcessed.Add(context.Background(), int64(n))
}
func (m *OtelMetrics) RecordQueryLatency(d time.Duration) {
	m.queryLatency.Record(context.Background(), d.Seconds())
}
func (m *OtelMetrics) IncJournalApplied(n uint64) {
	m.journalApplied.Add(context.Background(), int64(n))
}

// NewOtelMeterProvider builds an OpenTelemetry MeterProvider whose reader is
// a Prometheus exporter registered on reg, and a MetricHandle sourced from
// its "mftcore" meter — the otel-over-Prometheus shape the teacher's
// otel_metrics.go wires up. It also installs the provider as the process
// global via otel.SetMeterProvider, so any other package that calls
// otel.Meter() picks up the same exporter. Callers should Shutdown the
// returned provider when the process exits.
func NewOtelMeterProvider(reg *prometheus.Registry) (*sdkmetric.MeterProvider, MetricHandle, error) {
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewSchemaless(attribute.String("service.name", "fastsearch-mcp"))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	handle, err := NewOtelMetrics(provider.Meter("mftcore"))
	if err != nil {
		return nil, nil, err
	}
	return provider, handle, nil
}
