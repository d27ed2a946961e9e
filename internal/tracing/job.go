package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceparentHeader = "traceparent"
	tracestateHeader  = "tracestate"
)

// TraceCarrier rides inside a processing job payload. It holds the W3C trace
// context of the span that enqueued the attempt.
type TraceCarrier struct {
	TraceParent string `json:"trace_parent,omitempty"`
	TraceState  string `json:"trace_state,omitempty"`
}

var _ propagation.TextMapCarrier = (*TraceCarrier)(nil)

func (c *TraceCarrier) Get(key string) string {
	switch key {
	case traceparentHeader:
		return c.TraceParent
	case tracestateHeader:
		return c.TraceState
	}
	return ""
}

func (c *TraceCarrier) Set(key, value string) {
	switch key {
	case traceparentHeader:
		c.TraceParent = value
	case tracestateHeader:
		c.TraceState = value
	}
}

func (c *TraceCarrier) Keys() []string {
	return []string{traceparentHeader, tracestateHeader}
}

// Job payloads always use W3C trace context, whatever the global propagator.
var jobPropagator = propagation.TraceContext{}

func InjectTraceContext(ctx context.Context) TraceCarrier {
	var c TraceCarrier
	jobPropagator.Inject(ctx, &c)
	return c
}

func ExtractTraceContext(ctx context.Context, carrier TraceCarrier) context.Context {
	if carrier.TraceParent == "" {
		return ctx
	}
	return jobPropagator.Extract(ctx, &carrier)
}

// StartEnqueueSpan opens the producer span for handing one upload attempt
// to the queue. Inject its context into the job payload.
func StartEnqueueSpan(ctx context.Context, uploadID, jobID string, retryCount int32) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upload.enqueue",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			UploadIDKey.String(uploadID),
			JobIDKey.String(jobID),
			RetryCountKey.Int(int(retryCount)),
		),
	)
}

// StartProcessSpan opens the consumer span for one delivery of a processing
// job. Call ExtractTraceContext first so the span continues the submit trace.
func StartProcessSpan(ctx context.Context, uploadID, jobID string, retryCount int32) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upload.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			UploadIDKey.String(uploadID),
			JobIDKey.String(jobID),
			RetryCountKey.Int(int(retryCount)),
		),
	)
}

// StartStageSpan opens an internal span for one step of upload handling,
// such as blob writes, extraction or the catalog transaction.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upload."+stage, trace.WithSpanKind(trace.SpanKindInternal))
}
