package otel

import (
	"context"
	"time"

	"github.com/jilio/sharedstate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/jilio/sharedstate"
)

// Observability implements sharedstate.Observability using OpenTelemetry
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	writeCounter   metric.Int64Counter
	skippedCounter metric.Int64Counter
	writeErrors    metric.Int64Counter
	writeDuration  metric.Float64Histogram
	notifyCounter  metric.Int64Counter
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.writeCounter, err = obs.meter.Int64Counter(
		"sharedstate.write.count",
		metric.WithDescription("Number of committed writes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, err
	}

	obs.skippedCounter, err = obs.meter.Int64Counter(
		"sharedstate.write.skipped",
		metric.WithDescription("Number of writes skipped because the value was unchanged"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, err
	}

	obs.writeErrors, err = obs.meter.Int64Counter(
		"sharedstate.write.errors",
		metric.WithDescription("Number of writes aborted by an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.writeDuration, err = obs.meter.Float64Histogram(
		"sharedstate.write.duration",
		metric.WithDescription("Time from write start to commit, excluding fan-out"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.notifyCounter, err = obs.meter.Int64Counter(
		"sharedstate.notify.count",
		metric.WithDescription("Number of subscriber notifications"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

// OnWriteStart starts a span for the write
func (o *Observability) OnWriteStart(ctx context.Context, key string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "sharedstate.write: "+key,
		trace.WithAttributes(
			attribute.String("state.key", key),
		),
	)
	return ctx
}

// OnWriteComplete records the outcome and ends the write span
func (o *Observability) OnWriteComplete(ctx context.Context, key string, changed bool, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	attrs := metric.WithAttributes(attribute.String("state.key", key))

	o.writeDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.writeErrors.Add(ctx, 1, attrs)
	case changed:
		span.SetStatus(codes.Ok, "")
		o.writeCounter.Add(ctx, 1, attrs)
	default:
		span.SetAttributes(attribute.Bool("state.skipped", true))
		span.SetStatus(codes.Ok, "")
		o.skippedCounter.Add(ctx, 1, attrs)
	}

	span.End()
}

// OnNotify counts the subscribers about to be called
func (o *Observability) OnNotify(ctx context.Context, key string, subscribers int) {
	trace.SpanFromContext(ctx).AddEvent("sharedstate.notify",
		trace.WithAttributes(
			attribute.String("state.key", key),
			attribute.Int("state.subscribers", subscribers),
		),
	)
	o.notifyCounter.Add(ctx, int64(subscribers),
		metric.WithAttributes(attribute.String("state.key", key)),
	)
}

// Ensure Observability implements sharedstate.Observability
var _ sharedstate.Observability = (*Observability)(nil)
