// Package trace owns the process-wide OpenTelemetry tracer. Until Init runs,
// StartSpan hands back the parent span and costs nothing.
package trace

import (
	"context"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "options-momentum-bot"

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Config selects where spans go and how many are kept.
type Config struct {
	Enabled bool
	// Output receives pretty-printed spans. Nil means stdout.
	Output io.Writer
	// SampleRatio in (0, 1]; anything else samples every trace.
	SampleRatio float64
	// Mode is recorded on the resource so paper and live traces separate.
	Mode string
}

// ConfigFromEnv reads LOG_TRACING_ENABLED, TRACE_SAMPLE_RATIO and TRADING_MODE.
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled: getEnv("LOG_TRACING_ENABLED", "true") == "true",
		Mode:    os.Getenv("TRADING_MODE"),
	}
	if r, err := strconv.ParseFloat(os.Getenv("TRACE_SAMPLE_RATIO"), 64); err == nil {
		cfg.SampleRatio = r
	}
	return cfg
}

// Init installs the tracer from the environment.
func Init() error {
	return InitWithConfig(ConfigFromEnv())
}

func InitWithConfig(cfg Config) error {
	enabled = cfg.Enabled
	if !enabled {
		return nil
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		enabled = false
		return err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(Version),
	}
	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("trading.mode", cfg.Mode))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		enabled = false
		return err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(serviceName)
	return nil
}

// Shutdown flushes buffered spans.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	err := tracerProvider.Shutdown(ctx)
	tracerProvider, tracer, enabled = nil, nil, false
	return err
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

func Enabled() bool { return enabled }

// GetTraceFields returns the ids logged alongside a record.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
