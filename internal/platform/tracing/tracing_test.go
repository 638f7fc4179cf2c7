package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/fortune/internal/platform/telemetry"
)

func testResource(t *testing.T) *resource.Resource {
	t.Helper()
	res, err := telemetry.Resource(telemetry.Service{Name: "fortuned", Environment: "test"})
	require.NoError(t, err)
	return res
}

func TestNewRequiresResource(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestProviderExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := New(context.Background(), Config{Resource: testResource(t), SampleRatio: 1, Exporter: exp})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "fortune.current")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "fortune.current", spans[0].Name)

	name, ok := spans[0].Resource.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "fortuned", name.AsString())
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestZeroRatioDropsRootSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := New(context.Background(), Config{Resource: testResource(t), SampleRatio: 0, Exporter: exp})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "fortune.current")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, exp.GetSpans())
}

func TestExtractTraceparent(t *testing.T) {
	tp, err := New(context.Background(), Config{Resource: testResource(t), SampleRatio: 0})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := Extract(context.Background(), propagation.HeaderCarrier(header))

	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	_, child := tp.Tracer("test").Start(ctx, "fortune.current")
	defer child.End()
	assert.True(t, child.SpanContext().IsSampled(), "sampled parents are honoured")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
