// Package otel turns request events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	events "github.com/hanpama/gqlplug/internal/events"
	reqid "github.com/hanpama/gqlplug/internal/reqid"
)

const tracerName = "gqlplug"

type Config struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
	Insecure bool   `yaml:"insecure"`
}

// Setup configures an OTLP exporter and subscribes span recording to bus.
// If the endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, cfg Config, bus *eventbus.Bus) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.Service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(tp, bus)
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register records spans from bus events with tp. Spans of one request are
// correlated by request id.
func Register(tp trace.TracerProvider, bus *eventbus.Bus) (unsubscribe func()) {
	s := &subscriber{tracer: tp.Tracer(tracerName)}
	return s.register(bus)
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // rid -> trace.Span
}

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context) context.Context {
	rid, _ := reqid.FromContext(ctx)
	if v, ok := s.gqlSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	subs := []func(){
		eventbus.On(bus, func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("request.id", rid),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, "")
			}
			span.End()
		}),

		eventbus.On(bus, func(ctx context.Context, e events.GraphQLStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.gqlSpans.Store(rid, span)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.GraphQLFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.gqlSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			if len(e.Errors) > 0 {
				span.SetStatus(codes.Error, e.Errors[0].Error())
			}
			span.End()
		}),

		eventbus.On(bus, func(ctx context.Context, e events.FieldResolved) {
			_, span := s.tracer.Start(s.parent(ctx), "graphql.resolve", trace.WithTimestamp(e.Start))
			span.SetAttributes(
				attribute.String("graphql.field.path", e.Path),
				attribute.String("graphql.field.parent_type", e.ParentType),
				attribute.String("graphql.field.name", e.FieldName),
				attribute.String("graphql.field.type", e.ReturnType),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End(trace.WithTimestamp(e.Start.Add(e.Duration)))
		}),

		eventbus.On(bus, func(ctx context.Context, e events.CacheLookup) {
			end := time.Now()
			_, span := s.tracer.Start(s.parent(ctx), "cache.lookup", trace.WithTimestamp(end.Add(-e.Duration)))
			span.SetAttributes(
				attribute.String("cache.mode", e.Mode),
				attribute.Bool("cache.hit", e.Hit),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End(trace.WithTimestamp(end))
		}),
	}
	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}
