package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/example/fortune/internal/platform/telemetry"
)

const defaultInterval = 15 * time.Second

// Config selects where measurements go.
type Config struct {
	Collector telemetry.Collector
	Resource  *resource.Resource
	// Interval between periodic pushes to the collector.
	Interval time.Duration
	// Reader replaces the collector pipeline, mainly for tests.
	Reader sdkmetric.Reader
}

// New builds a meter provider and registers it globally. With no reader and
// no collector endpoint, instruments still record but nothing is exported.
func New(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if cfg.Resource == nil {
		return nil, errors.New("metrics: resource is required")
	}

	reader := cfg.Reader
	if reader == nil && cfg.Collector.Enabled() {
		exp, err := newExporter(ctx, cfg.Collector)
		if err != nil {
			return nil, err
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = defaultInterval
		}
		reader = sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(interval),
			sdkmetric.WithTimeout(cfg.Collector.ExportTimeout()),
		)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(cfg.Resource)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)
	return provider, nil
}

func newExporter(ctx context.Context, c telemetry.Collector) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(c.Endpoint),
		otlpmetricgrpc.WithTimeout(c.ExportTimeout()),
	}
	for _, dial := range c.DialOptions() {
		opts = append(opts, otlpmetricgrpc.WithDialOption(dial))
	}
	if headers := c.HeaderCopy(); headers != nil {
		opts = append(opts, otlpmetricgrpc.WithHeaders(headers))
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metrics: exporter %s: %w", c.Endpoint, err)
	}
	return exp, nil
}
