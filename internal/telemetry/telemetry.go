package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gantz-ai/gantz/internal/version"
)

const serviceName = "gantz"

// Config holds configuration for the telemetry service.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Environment  string
}

// Service manages OpenTelemetry initialization and the gateway's
// business instruments. All record methods are safe to call on an
// uninitialized or disabled service.
type Service struct {
	tracer        trace.Tracer
	meter         metric.Meter
	shutdownFuncs []func(context.Context) error
	config        *Config

	invocationCounter  metric.Int64Counter
	invocationDuration metric.Float64Histogram
	cacheHitCounter    metric.Int64Counter
	timeoutCounter     metric.Int64Counter
	errorCounter       metric.Int64Counter
	activeRequests     metric.Int64UpDownCounter
}

// New creates a telemetry service with the given configuration.
func New(config *Config) *Service {
	if config == nil {
		config = &Config{
			Enabled:     true,
			ServiceName: serviceName,
			Environment: "development",
		}
	}

	return &Service{
		config: config,
	}
}

// Initialize sets up OpenTelemetry with appropriate exporters based on
// configuration. It is a no-op when telemetry is disabled.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	name := s.config.ServiceName
	if name == "" {
		name = serviceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version.GetVersion()),
			semconv.DeploymentEnvironmentKey.String(s.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTEL resource: %w", err)
	}

	traceProvider, err := s.initTraceProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("failed to initialize trace provider: %w", err)
	}

	meterProvider, err := s.initMeterProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("failed to initialize meter provider: %w", err)
	}

	// Set global providers so spans and measurements are exported.
	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	s.tracer = otel.Tracer(name)
	s.meter = otel.Meter(name)

	if err := s.initInstruments(); err != nil {
		return fmt.Errorf("failed to initialize instruments: %w", err)
	}

	return nil
}

// initTraceProvider creates a trace provider with the appropriate exporter.
func (s *Service) initTraceProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	otlpEndpoint := s.otlpEndpoint()
	if otlpEndpoint != "" {
		if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
			exporter, err = otlptracegrpc.New(ctx)
		} else {
			exporter, err = otlptracehttp.New(ctx,
				otlptracehttp.WithEndpoint(stripScheme(otlpEndpoint)),
				otlptracehttp.WithInsecure(),
			)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	} else {
		// No endpoint configured, swallow spans instead of spamming logs.
		exporter = &noOpExporter{}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Second*1),
			sdktrace.WithExportTimeout(time.Second*10),
		),
		sdktrace.WithSampler(s.getSampler()),
	)

	s.shutdownFuncs = append(s.shutdownFuncs, tp.Shutdown)

	return tp, nil
}

// initMeterProvider creates a meter provider. Without an OTLP endpoint the
// provider carries no reader, so instruments stay cheap no-ops.
func (s *Service) initMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	otlpEndpoint := s.otlpEndpoint()
	if otlpEndpoint == "" {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		s.shutdownFuncs = append(s.shutdownFuncs, mp.Shutdown)
		return mp, nil
	}

	var exporter sdkmetric.Exporter
	var err error
	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(stripScheme(otlpEndpoint)),
			otlpmetrichttp.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Second*15),
		)),
	)

	s.shutdownFuncs = append(s.shutdownFuncs, mp.Shutdown)

	return mp, nil
}

// initInstruments creates the gateway's business instruments.
func (s *Service) initInstruments() error {
	var err error

	s.invocationCounter, err = s.meter.Int64Counter(
		"gantz_invocations_total",
		metric.WithDescription("Total number of tool invocations"),
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation counter: %w", err)
	}

	s.invocationDuration, err = s.meter.Float64Histogram(
		"gantz_invocation_duration_seconds",
		metric.WithDescription("Duration of tool invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation duration histogram: %w", err)
	}

	s.cacheHitCounter, err = s.meter.Int64Counter(
		"gantz_cache_hits_total",
		metric.WithDescription("Total number of invocations served from cache"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	s.timeoutCounter, err = s.meter.Int64Counter(
		"gantz_timeouts_total",
		metric.WithDescription("Total number of invocations that exceeded their budget"),
	)
	if err != nil {
		return fmt.Errorf("failed to create timeout counter: %w", err)
	}

	s.errorCounter, err = s.meter.Int64Counter(
		"gantz_errors_total",
		metric.WithDescription("Total number of errors encountered"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	s.activeRequests, err = s.meter.Int64UpDownCounter(
		"gantz_active_requests",
		metric.WithDescription("Number of requests currently in flight"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active request counter: %w", err)
	}

	return nil
}

// otlpEndpoint resolves the export endpoint from configuration with
// fallback to the standard OTEL environment variables.
func (s *Service) otlpEndpoint() string {
	endpoint := s.config.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
		}
	}
	return endpoint
}

// getSampler returns the appropriate sampling strategy.
func (s *Service) getSampler() sdktrace.Sampler {
	switch getEnvironment() {
	case "production":
		return sdktrace.TraceIDRatioBased(0.1)
	case "staging":
		return sdktrace.TraceIDRatioBased(0.5)
	default:
		return sdktrace.AlwaysSample()
	}
}

// StartSpan creates a new span. It returns the ambient span when telemetry
// is disabled.
func (s *Service) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name, opts...)
}

// RecordInvocation records a completed invocation and its duration.
func (s *Service) RecordInvocation(ctx context.Context, tool, toolVersion, status string, duration time.Duration) {
	if s == nil || s.tracer == nil {
		return
	}

	s.invocationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.version", toolVersion),
		attribute.String("status", status),
	))
	s.invocationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.version", toolVersion),
	))
}

// RecordCacheHit records an invocation served from cache. Cache hits do not
// feed the invocation counter or the duration histogram.
func (s *Service) RecordCacheHit(ctx context.Context, tool, toolVersion string) {
	if s == nil || s.tracer == nil {
		return
	}
	s.cacheHitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.version", toolVersion),
	))
}

// RecordTimeout records an invocation that ran out of budget.
func (s *Service) RecordTimeout(ctx context.Context, tool, toolVersion string) {
	if s == nil || s.tracer == nil {
		return
	}
	s.timeoutCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.version", toolVersion),
	))
}

// RecordError records an error by taxonomy kind. Tool and version may be
// empty when the request failed before resolution.
func (s *Service) RecordError(ctx context.Context, tool, toolVersion, kind string) {
	if s == nil || s.tracer == nil {
		return
	}
	s.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.version", toolVersion),
		attribute.String("error.kind", kind),
	))
}

// AddActiveRequests adjusts the in-flight request gauge.
func (s *Service) AddActiveRequests(ctx context.Context, delta int64) {
	if s == nil || s.tracer == nil {
		return
	}
	s.activeRequests.Add(ctx, delta)
}

// Shutdown gracefully shuts down the telemetry providers.
func (s *Service) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range s.shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ForceFlush forces immediate export of all pending spans.
func (s *Service) ForceFlush(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return tp.ForceFlush(ctx)
	}
	return nil
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return endpoint
}

func getEnvironment() string {
	env := os.Getenv("GANTZ_ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return env
}

// noOpExporter swallows spans when no OTLP endpoint is configured.
type noOpExporter struct{}

func (e *noOpExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *noOpExporter) Shutdown(ctx context.Context) error {
	return nil
}
