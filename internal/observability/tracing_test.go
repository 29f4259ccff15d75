package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/annel0/spline-sim/internal/config"
)

func TestSpansRecordErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), "backend.switch", attribute.String("backend", "matter"))
	EndSpan(span, errors.New("no terrain"))

	_, ok := StartSpan(context.Background(), "terrain.ensure")
	EndSpan(ok, nil)

	spans := recorder.Ended()
	if assert.Len(t, spans, 2) {
		assert.Equal(t, "backend.switch", spans[0].Name())
		assert.Len(t, spans[0].Events(), 1, "Ошибка должна записываться событием спана")
		assert.Equal(t, "Error", spans[0].Status().Code.String())
		assert.Equal(t, "Unset", spans[1].Status().Code.String())
	}
}

func TestTracerProviderSampling(t *testing.T) {
	ctx := context.Background()

	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(ctx, config.TelemetryConfig{ServiceName: "spline-sim", SampleRatio: 1}, exporter)
	require.NoError(t, err)
	_, span := tp.Tracer(tracerName).Start(ctx, "simulation.restart")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	name, ok := spans[0].Resource.Set().Value(semconv.ServiceNameKey)
	assert.True(t, ok, "Ресурс содержит имя сервиса")
	assert.Equal(t, "spline-sim", name.AsString())
	require.NoError(t, tp.Shutdown(ctx))

	muted := tracetest.NewInMemoryExporter()
	tp, err = NewTracerProvider(ctx, config.TelemetryConfig{ServiceName: "spline-sim", SampleRatio: 0}, muted)
	require.NoError(t, err)
	_, span = tp.Tracer(tracerName).Start(ctx, "simulation.restart")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))
	assert.Empty(t, muted.GetSpans(), "При доле 0 корневые спаны не экспортируются")
	require.NoError(t, tp.Shutdown(ctx))
}
