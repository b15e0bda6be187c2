package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/buildplan"
)

// Metrics holds the OpenTelemetry instruments shared across packages.
type Metrics struct {
	// Composition
	ComposeTotal           metric.Int64Counter
	UnresolvedPlaceholders metric.Int64Counter

	// Builds
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	OutputFilesTotal  metric.Int64Counter
	PluginErrorsTotal metric.Int64Counter

	// Dev server
	ReloadsTotal       metric.Int64Counter
	ProxyRequestsTotal metric.Int64Counter
	LiveReloadClients  metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.ComposeTotal, _ = meter.Int64Counter(
		"buildplan.compose.total",
		metric.WithDescription("Total number of plan compositions"),
		metric.WithUnit("{composition}"),
	)

	m.UnresolvedPlaceholders, _ = meter.Int64Counter(
		"buildplan.compose.unresolved_placeholders",
		metric.WithDescription("Placeholders that had no value and resolved to empty"),
		metric.WithUnit("{placeholder}"),
	)

	m.BuildsTotal, _ = meter.Int64Counter(
		"buildplan.builds.total",
		metric.WithDescription("Total number of bundler runs"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"buildplan.builds.errors.total",
		metric.WithDescription("Total number of failed bundler runs"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"buildplan.builds.duration",
		metric.WithDescription("Duration of bundler runs including plugins"),
		metric.WithUnit("ms"),
	)

	m.OutputFilesTotal, _ = meter.Int64Counter(
		"buildplan.builds.output_files.total",
		metric.WithDescription("Files emitted by the bundler"),
		metric.WithUnit("{file}"),
	)

	m.PluginErrorsTotal, _ = meter.Int64Counter(
		"buildplan.plugins.errors.total",
		metric.WithDescription("Failures in clean, copy and html plugins"),
		metric.WithUnit("{error}"),
	)

	m.ReloadsTotal, _ = meter.Int64Counter(
		"buildplan.devserver.reloads.total",
		metric.WithDescription("Live reload notifications sent"),
		metric.WithUnit("{event}"),
	)

	m.ProxyRequestsTotal, _ = meter.Int64Counter(
		"buildplan.devserver.proxy_requests.total",
		metric.WithDescription("Requests forwarded to the proxy target"),
		metric.WithUnit("{request}"),
	)

	m.LiveReloadClients, _ = meter.Int64UpDownCounter(
		"buildplan.devserver.livereload_clients",
		metric.WithDescription("Connected live reload clients"),
		metric.WithUnit("{client}"),
	)

	return m
}
