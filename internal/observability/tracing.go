package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/annel0/spline-sim"

// Version версия сборки для ресурса трассировки (-ldflags "-X ...observability.Version=...")
var Version = "dev"

// Tracer трассировщик симулятора из глобального провайдера.
// Без InitTelemetry провайдер no-op и спаны ничего не стоят.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan открывает спан с атрибутами
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan закрывает спан, отмечая ошибку, если она есть
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
