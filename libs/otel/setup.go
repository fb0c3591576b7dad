package otelx

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	Enabled        bool
	MetricsEnabled bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // host:port, e.g. otel-collector:4317
	SampleRatio    float64
	MetricInterval time.Duration
}

func ConfigFromEnv(serviceName, serviceVersion string) Config {
	cfg := Config{
		Enabled:        envBool("OTEL_ENABLED", true),
		MetricsEnabled: envBool("OTEL_METRICS_ENABLED", true),
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		SampleRatio:    1.0,
		MetricInterval: 30 * time.Second,
	}
	if f, err := strconv.ParseFloat(getenv("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		cfg.SampleRatio = f
	}
	if secs, err := strconv.Atoi(getenv("OTEL_METRIC_INTERVAL_SECONDS", "30")); err == nil && secs > 0 {
		cfg.MetricInterval = time.Duration(secs) * time.Second
	}
	return cfg
}

// Setup configures the global tracer and meter providers plus propagators.
// Call the returned shutdown func during graceful shutdown. With tracing
// disabled the globals stay no-op, so instruments are always safe to use.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdowns := []func(context.Context) error{tp.Shutdown}

	if cfg.MetricsEnabled {
		metricExp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithTimeout(3*time.Second),
		)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.MetricInterval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(getenv(key, "")) {
	case "false", "0", "no", "off":
		return false
	case "true", "1", "yes", "on":
		return true
	default:
		return fallback
	}
}
