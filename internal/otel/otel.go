// Package otel wires rule-execution events into OpenTelemetry traces.
// Spans are correlated through the execution id carried in the context.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
	"github.com/ankitjan/rules-engine/internal/execid"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("rules-engine")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer     trace.Tracer
	execSpans  sync.Map // execution id -> trace.Span
	fetchSpans sync.Map // execution id + field -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.ExecStart) {
		id, _ := execid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "rule.execute")
		span.SetAttributes(
			attribute.String("rule.id", e.RuleID),
			attribute.String("rule.name", e.RuleName),
		)
		s.execSpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ExecFinish) {
		id, _ := execid.FromContext(ctx)
		v, ok := s.execSpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Bool("rule.outcome", e.Outcome),
			attribute.String("rule.error_kind", e.ErrorKind),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.FetchStart) {
		id, _ := execid.FromContext(ctx)
		parent := ctx
		if v, ok := s.execSpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "field.fetch")
		span.SetAttributes(
			attribute.String("field.name", e.Field),
			attribute.String("dataservice.endpoint", e.Endpoint),
			attribute.String("dataservice.type", e.ServiceType),
		)
		s.fetchSpans.Store(id+"/"+e.Field, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.FetchFinish) {
		id, _ := execid.FromContext(ctx)
		v, ok := s.fetchSpans.LoadAndDelete(id + "/" + e.Field)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("http.status_code", e.Status),
			attribute.Int("dataservice.attempts", e.Attempts),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
