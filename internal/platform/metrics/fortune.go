package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Fortune holds the instruments reported by the fortune server.
type Fortune struct {
	requests metric.Int64Counter
	rerolls  metric.Int64Counter
	reg      metric.Registration
}

// NewFortune registers fortune instruments on meter. storeSize is observed on
// every collection.
func NewFortune(meter metric.Meter, storeSize func() int) (*Fortune, error) {
	requests, err := meter.Int64Counter("fortune.requests",
		metric.WithDescription("Fortune requests served, by response format."),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("metrics: requests counter: %w", err)
	}
	rerolls, err := meter.Int64Counter("fortune.rerolls",
		metric.WithDescription("New selections made when a time slice advanced."),
		metric.WithUnit("{reroll}"))
	if err != nil {
		return nil, fmt.Errorf("metrics: rerolls counter: %w", err)
	}
	size, err := meter.Int64ObservableGauge("fortune.store.size",
		metric.WithDescription("Records loaded into the store."),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, fmt.Errorf("metrics: store size gauge: %w", err)
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(size, int64(storeSize()))
		return nil
	}, size)
	if err != nil {
		return nil, fmt.Errorf("metrics: register store size callback: %w", err)
	}
	return &Fortune{requests: requests, rerolls: rerolls, reg: reg}, nil
}

// Request counts one served fortune.
func (f *Fortune) Request(ctx context.Context, format string) {
	if f == nil {
		return
	}
	f.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

// Reroll counts one new selection.
func (f *Fortune) Reroll(ctx context.Context) {
	if f == nil {
		return
	}
	f.rerolls.Add(ctx, 1)
}

// Close unregisters the gauge callback.
func (f *Fortune) Close() error {
	if f == nil || f.reg == nil {
		return nil
	}
	return f.reg.Unregister()
}
