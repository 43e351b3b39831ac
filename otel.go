package messaging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/corevane/messaging"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the messaging service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	sendLatency   metric.Float64Histogram
	sendCount     metric.Int64Counter
	sendErrors    metric.Int64Counter
	editLatency   metric.Float64Histogram
	editCount     metric.Int64Counter
	editErrors    metric.Int64Counter
	deleteLatency metric.Float64Histogram
	deleteCount   metric.Int64Counter
	deleteErrors  metric.Int64Counter
	threadLatency metric.Float64Histogram
	threadCount   metric.Int64Counter
	threadErrors  metric.Int64Counter
	purgeLatency  metric.Float64Histogram
	purgeCount    metric.Int64Counter
	purgeErrors   metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	// Initialize tracer
	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	// Initialize metrics
	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	// Send metrics
	o.sendLatency, err = meter.Float64Histogram(
		"messaging.send.duration",
		metric.WithDescription("Duration of send operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.sendCount, err = meter.Int64Counter(
		"messaging.send.count",
		metric.WithDescription("Number of messages sent"),
	)
	if err != nil {
		return err
	}

	o.sendErrors, err = meter.Int64Counter(
		"messaging.send.errors",
		metric.WithDescription("Number of send errors"),
	)
	if err != nil {
		return err
	}

	// Edit metrics
	o.editLatency, err = meter.Float64Histogram(
		"messaging.edit.duration",
		metric.WithDescription("Duration of edit operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.editCount, err = meter.Int64Counter(
		"messaging.edit.count",
		metric.WithDescription("Number of edit operations"),
	)
	if err != nil {
		return err
	}

	o.editErrors, err = meter.Int64Counter(
		"messaging.edit.errors",
		metric.WithDescription("Number of edit errors"),
	)
	if err != nil {
		return err
	}

	// Delete metrics
	o.deleteLatency, err = meter.Float64Histogram(
		"messaging.delete.duration",
		metric.WithDescription("Duration of delete operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deleteCount, err = meter.Int64Counter(
		"messaging.delete.count",
		metric.WithDescription("Number of delete operations"),
	)
	if err != nil {
		return err
	}

	o.deleteErrors, err = meter.Int64Counter(
		"messaging.delete.errors",
		metric.WithDescription("Number of delete errors"),
	)
	if err != nil {
		return err
	}

	// Thread metrics
	o.threadLatency, err = meter.Float64Histogram(
		"messaging.thread.duration",
		metric.WithDescription("Duration of thread assembly operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.threadCount, err = meter.Int64Counter(
		"messaging.thread.count",
		metric.WithDescription("Number of thread assembly operations"),
	)
	if err != nil {
		return err
	}

	o.threadErrors, err = meter.Int64Counter(
		"messaging.thread.errors",
		metric.WithDescription("Number of thread assembly errors"),
	)
	if err != nil {
		return err
	}

	// Purge metrics
	o.purgeLatency, err = meter.Float64Histogram(
		"messaging.purge.duration",
		metric.WithDescription("Duration of user purge operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.purgeCount, err = meter.Int64Counter(
		"messaging.purge.count",
		metric.WithDescription("Number of user purge operations"),
	)
	if err != nil {
		return err
	}

	o.purgeErrors, err = meter.Int64Counter(
		"messaging.purge.errors",
		metric.WithDescription("Number of user purge errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller should invoke the returned func with the operation's final error.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordSend records send operation metrics.
func (o *otelInstrumentation) recordSend(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.sendLatency.Record(ctx, duration.Seconds())
	o.sendCount.Add(ctx, 1)
	if err != nil {
		o.sendErrors.Add(ctx, 1)
	}
}

// recordEdit records edit operation metrics.
func (o *otelInstrumentation) recordEdit(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.editLatency.Record(ctx, duration.Seconds())
	o.editCount.Add(ctx, 1)
	if err != nil {
		o.editErrors.Add(ctx, 1)
	}
}

// recordDelete records delete operation metrics.
func (o *otelInstrumentation) recordDelete(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.deleteLatency.Record(ctx, duration.Seconds())
	o.deleteCount.Add(ctx, 1)
	if err != nil {
		o.deleteErrors.Add(ctx, 1)
	}
}

// recordThread records thread assembly metrics.
func (o *otelInstrumentation) recordThread(ctx context.Context, duration time.Duration, size int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("thread_size", size),
	)

	o.threadLatency.Record(ctx, duration.Seconds(), attrs)
	o.threadCount.Add(ctx, 1, attrs)
	if err != nil {
		o.threadErrors.Add(ctx, 1, attrs)
	}
}

// recordPurge records user purge metrics.
func (o *otelInstrumentation) recordPurge(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.purgeLatency.Record(ctx, duration.Seconds())
	o.purgeCount.Add(ctx, 1)
	if err != nil {
		o.purgeErrors.Add(ctx, 1)
	}
}
