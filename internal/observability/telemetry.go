// Package observability wires structured logging and OpenTelemetry tracing
// and metrics for Continuum operations.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/davidahmann/continuum"

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Telemetry records a span and RED metrics per operation plus verdict and
// activation counters.
type Telemetry struct {
	tracer      trace.Tracer
	operations  metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	verdicts    metric.Int64Counter
	activations metric.Int64Counter
	shutdown    []func(context.Context) error
}

// Noop returns Telemetry that records nothing.
func Noop() *Telemetry {
	t, _ := NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return t
}

// New exports over OTLP/gRPC when cfg.Enabled, otherwise returns Noop.
func New(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	logger := slog.Default().With("component", "observability")
	if !cfg.Enabled {
		logger.DebugContext(ctx, "telemetry disabled")
		return Noop(), nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "continuum"
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{}
	metricOpts := []otlpmetricgrpc.Option{}
	if cfg.OTLPEndpoint != "" {
		traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
	}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t, err := NewWithProviders(tp, mp)
	if err != nil {
		return nil, err
	}
	t.shutdown = append(t.shutdown, tp.Shutdown, mp.Shutdown)

	logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
		"insecure", cfg.Insecure,
	)
	return t, nil
}

// NewWithProviders builds instruments on caller-owned providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.operations, err = meter.Int64Counter("continuum.operations.total",
		metric.WithDescription("Operations processed"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if t.errors, err = meter.Int64Counter("continuum.errors.total",
		metric.WithDescription("Operations that returned an error"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if t.duration, err = meter.Float64Histogram("continuum.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if t.verdicts, err = meter.Int64Counter("continuum.enforcement.verdicts",
		metric.WithDescription("Enforcement verdicts by outcome"),
		metric.WithUnit("{verdict}"),
	); err != nil {
		return nil, err
	}
	if t.activations, err = meter.Int64Counter("continuum.activations",
		metric.WithDescription("Activation gate outcomes"),
		metric.WithUnit("{activation}"),
	); err != nil {
		return nil, err
	}
	return t, nil
}

// Track starts a span for op. Call the returned func with the operation's error.
func (t *Telemetry) Track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	opAttrs := metric.WithAttributes(attribute.String("operation", op))
	t.operations.Add(ctx, 1, opAttrs)

	return ctx, func(err error) {
		t.duration.Record(ctx, time.Since(start).Seconds(), opAttrs)
		if err != nil {
			span.RecordError(err)
			t.errors.Add(ctx, 1, opAttrs)
		}
		span.End()
	}
}

func (t *Telemetry) RecordVerdict(ctx context.Context, verdict string) {
	t.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

func (t *Telemetry) RecordActivation(ctx context.Context, outcome string) {
	t.activations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
