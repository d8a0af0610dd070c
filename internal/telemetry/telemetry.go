// Package telemetry configures the OpenTelemetry tracer and meter
// providers from an OTLP/HTTP endpoint, and exposes the graph-transaction
// instrumentation shared by internal/graphstore. Grounded on
// intelligencedev-manifold/internal/observability/otel.go's
// resource/exporter/provider wiring (otlptracehttp, otlpmetrichttp,
// sdktrace.NewTracerProvider, metric.NewMeterProvider), trimmed of the
// teacher's host-metrics collector (github.com/.../contrib/instrumentation/host),
// which instruments the process's own CPU/memory and has no equivalent
// concern in a short-lived batch ingest command.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds the OTLP exporter settings (spec §6 env vars
// OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT).
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Setup installs a tracer and meter provider when cfg.Enabled, or a
// no-op shutdown when it isn't — llmextract and graphstore always
// call otel.Tracer(...)/otel.Meter(...) unconditionally, so an unset
// global provider (the otel package's default no-op) is what actually
// disables telemetry when the operator hasn't configured an endpoint.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var first error
		if err := tp.Shutdown(ctx); err != nil {
			first = err
		}
		if err := mp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
		return first
	}, nil
}

// GraphTxMetrics bundles the counters recorded around a graph
// transaction (spec §4.4's UpsertDocument/Merge operations). Built once
// at startup and passed to internal/graphstore.
type GraphTxMetrics struct {
	commits metric.Int64Counter
	errors  metric.Int64Counter
}

// NewGraphTxMetrics creates the graph-transaction counters on the
// global meter provider (a no-op meter when Setup was never called with
// an enabled config, so this is safe to build unconditionally).
func NewGraphTxMetrics() (GraphTxMetrics, error) {
	meter := otel.Meter("internal/graphstore")

	commits, err := meter.Int64Counter("graphstore.transactions",
		metric.WithDescription("Committed graph write transactions"))
	if err != nil {
		return GraphTxMetrics{}, fmt.Errorf("telemetry: graph tx counter: %w", err)
	}
	errs, err := meter.Int64Counter("graphstore.transaction_errors",
		metric.WithDescription("Failed graph write transactions"))
	if err != nil {
		return GraphTxMetrics{}, fmt.Errorf("telemetry: graph tx error counter: %w", err)
	}
	return GraphTxMetrics{commits: commits, errors: errs}, nil
}

// RecordCommit increments the commit counter, tagged by operation
// ("upsert_document" or "merge") and namespace.
func (m GraphTxMetrics) RecordCommit(ctx context.Context, operation, namespace string) {
	if m.commits == nil {
		return
	}
	m.commits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("namespace", namespace),
	))
}

// RecordError increments the error counter for a failed transaction.
func (m GraphTxMetrics) RecordError(ctx context.Context, operation, namespace string) {
	if m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("namespace", namespace),
	))
}
