package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the taskhive backend.
type MetricsCollector struct {
	meter metric.Meter

	// HTTP metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram
	httpInFlight metric.Int64UpDownCounter

	// Domain metrics
	versionConflicts metric.Int64Counter
	creditsConsumed  metric.Int64Counter
	creditsRefunded  metric.Int64Counter
	eventsDispatched metric.Int64Counter
	handlerErrors    metric.Int64Counter

	// Job engine metrics
	jobsProcessed metric.Int64Counter
	jobDuration   metric.Float64Histogram
	jobsDead      metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool
}

// NewMetricsCollector creates a new metrics collector. The returned collector
// is safe to use when disabled; all record methods become no-ops.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("taskhive")

	httpRequests, err := meter.Int64Counter(
		"taskhive.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	httpLatency, err := meter.Float64Histogram(
		"taskhive.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	httpInFlight, err := meter.Int64UpDownCounter(
		"taskhive.http.in_flight",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_in_flight gauge: %w", err)
	}

	versionConflicts, err := meter.Int64Counter(
		"taskhive.tasks.version_conflicts.total",
		metric.WithDescription("Total optimistic lock failures on task updates"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create version_conflicts counter: %w", err)
	}

	creditsConsumed, err := meter.Int64Counter(
		"taskhive.credits.consumed.total",
		metric.WithDescription("Total AI credits consumed"),
		metric.WithUnit("{credit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_consumed counter: %w", err)
	}

	creditsRefunded, err := meter.Int64Counter(
		"taskhive.credits.refunded.total",
		metric.WithDescription("Total AI credits refunded after vendor failures"),
		metric.WithUnit("{credit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits_refunded counter: %w", err)
	}

	eventsDispatched, err := meter.Int64Counter(
		"taskhive.events.dispatched.total",
		metric.WithDescription("Total domain events dispatched"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events_dispatched counter: %w", err)
	}

	handlerErrors, err := meter.Int64Counter(
		"taskhive.events.handler_errors.total",
		metric.WithDescription("Total errors collected from event handlers"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler_errors counter: %w", err)
	}

	jobsProcessed, err := meter.Int64Counter(
		"taskhive.jobs.processed.total",
		metric.WithDescription("Total jobs processed by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs_processed counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram(
		"taskhive.jobs.duration",
		metric.WithDescription("Job handler execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job_duration histogram: %w", err)
	}

	jobsDead, err := meter.Int64Counter(
		"taskhive.jobs.dead.total",
		metric.WithDescription("Total jobs moved to the dead letter state"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs_dead counter: %w", err)
	}

	return &MetricsCollector{
		meter:            meter,
		httpRequests:     httpRequests,
		httpLatency:      httpLatency,
		httpInFlight:     httpInFlight,
		versionConflicts: versionConflicts,
		creditsConsumed:  creditsConsumed,
		creditsRefunded:  creditsRefunded,
		eventsDispatched: eventsDispatched,
		handlerErrors:    handlerErrors,
		jobsProcessed:    jobsProcessed,
		jobDuration:      jobDuration,
		jobsDead:         jobsDead,
	}, nil
}

// Handler returns the Prometheus exposition handler for /metrics.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// RecordHTTPRequest records a completed HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

// HTTPRequestStarted increments the in-flight gauge.
func (m *MetricsCollector) HTTPRequestStarted(ctx context.Context) {
	if m == nil || m.httpInFlight == nil {
		return
	}
	m.httpInFlight.Add(ctx, 1)
}

// HTTPRequestFinished decrements the in-flight gauge.
func (m *MetricsCollector) HTTPRequestFinished(ctx context.Context) {
	if m == nil || m.httpInFlight == nil {
		return
	}
	m.httpInFlight.Add(ctx, -1)
}

// RecordVersionConflict records an optimistic lock failure.
func (m *MetricsCollector) RecordVersionConflict(ctx context.Context) {
	if m == nil || m.versionConflicts == nil {
		return
	}
	m.versionConflicts.Add(ctx, 1)
}

// RecordCreditsConsumed records consumed credits by operation.
func (m *MetricsCollector) RecordCreditsConsumed(ctx context.Context, operation string, amount int64) {
	if m == nil || m.creditsConsumed == nil {
		return
	}
	m.creditsConsumed.Add(ctx, amount, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordCreditsRefunded records refunded credits by operation.
func (m *MetricsCollector) RecordCreditsRefunded(ctx context.Context, operation string, amount int64) {
	if m == nil || m.creditsRefunded == nil {
		return
	}
	m.creditsRefunded.Add(ctx, amount, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordEventDispatch records a bus dispatch and any collected handler errors.
func (m *MetricsCollector) RecordEventDispatch(ctx context.Context, eventType string, handlerErrors int) {
	if m == nil || m.eventsDispatched == nil {
		return
	}
	m.eventsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	if handlerErrors > 0 {
		m.handlerErrors.Add(ctx, int64(handlerErrors), metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}

// RecordJob records a processed job with its outcome and duration.
func (m *MetricsCollector) RecordJob(ctx context.Context, jobType, outcome string, duration time.Duration) {
	if m == nil || m.jobsProcessed == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("job_type", jobType),
		attribute.String("outcome", outcome),
	}
	m.jobsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("job_type", jobType)))
}

// RecordDeadJob records a job transitioning to the dead letter state.
func (m *MetricsCollector) RecordDeadJob(ctx context.Context, jobType string) {
	if m == nil || m.jobsDead == nil {
		return
	}
	m.jobsDead.Add(ctx, 1, metric.WithAttributes(attribute.String("job_type", jobType)))
}
