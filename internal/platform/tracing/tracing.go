package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/example/fortune/internal/platform/telemetry"
)

// Config defines export and sampling.
type Config struct {
	Collector telemetry.Collector
	Resource  *resource.Resource
	// SampleRatio applies to root spans; inbound sampling decisions are kept.
	SampleRatio float64
	// Exporter replaces the collector exporter, mainly for tests.
	Exporter sdktrace.SpanExporter
}

// New builds a tracer provider, registers it globally and installs the W3C
// trace-context and baggage propagators.
func New(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.Resource == nil {
		return nil, errors.New("tracing: resource is required")
	}

	exp := cfg.Exporter
	if exp == nil && cfg.Collector.Enabled() {
		var err error
		if exp, err = newExporter(ctx, cfg.Collector); err != nil {
			return nil, err
		}
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRatio))),
		sdktrace.WithResource(cfg.Resource),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp,
			sdktrace.WithExportTimeout(cfg.Collector.ExportTimeout())))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

// Extract continues a trace carried by inbound headers.
func Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newExporter(ctx context.Context, c telemetry.Collector) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(c.Endpoint),
		otlptracegrpc.WithTimeout(c.ExportTimeout()),
	}
	for _, dial := range c.DialOptions() {
		opts = append(opts, otlptracegrpc.WithDialOption(dial))
	}
	if headers := c.HeaderCopy(); headers != nil {
		opts = append(opts, otlptracegrpc.WithHeaders(headers))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter %s: %w", c.Endpoint, err)
	}
	return exp, nil
}
