package telemetry

import (
	"context"

	"github.com/stateforward/go-fsm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Trace adapts an OpenTelemetry tracer into an fsm.Trace hook. Boolean
// results are recorded as fsm.fired, errors mark the span as failed.
func Trace(tracer trace.Tracer) fsm.Trace {
	return func(ctx context.Context, step string, attributes ...attribute.KeyValue) func(...any) {
		_, span := tracer.Start(ctx, step, trace.WithAttributes(attributes...))
		return func(results ...any) {
			for _, result := range results {
				switch result := result.(type) {
				case bool:
					span.SetAttributes(attribute.Bool("fsm.fired", result))
				case error:
					span.RecordError(result)
					span.SetStatus(codes.Error, result.Error())
				case attribute.KeyValue:
					span.SetAttributes(result)
				}
			}
			span.End()
		}
	}
}

type Provider struct {
	trace.TracerProvider
}

var provider = &Provider{TracerProvider: noop.NewTracerProvider()}

// NewProvider returns the shared no-op provider.
func NewProvider() *Provider {
	return provider
}

// Recorder is a tracer keeping its spans in memory, for tests and the CLI.
type Recorder struct {
	trace.Tracer
	provider *sdktrace.TracerProvider
	spans    *tracetest.SpanRecorder
}

func NewRecorder(name string) *Recorder {
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	return &Recorder{
		Tracer:   provider.Tracer(name),
		provider: provider,
		spans:    spans,
	}
}

// Spans returns the recorded spans in start order, ended or not.
func (recorder *Recorder) Spans() []sdktrace.ReadOnlySpan {
	started := recorder.spans.Started()
	spans := make([]sdktrace.ReadOnlySpan, 0, len(started))
	for _, span := range started {
		spans = append(spans, span)
	}
	return spans
}

func (recorder *Recorder) Shutdown(ctx context.Context) error {
	return recorder.provider.Shutdown(ctx)
}

// Attribute returns the last value recorded on span for key.
func Attribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	attributes := span.Attributes()
	for i := len(attributes) - 1; i >= 0; i-- {
		if attributes[i].Key == key {
			return attributes[i].Value, true
		}
	}
	return attribute.Value{}, false
}

func Ended(span sdktrace.ReadOnlySpan) bool {
	return !span.EndTime().IsZero()
}
