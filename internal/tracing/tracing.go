// Package tracing wires OpenTelemetry for the api and worker processes and
// carries an upload's trace across the job queue, so the worker spans of an
// attempt hang off the request that submitted it.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/abdul-hamid-achik/trackdrop"

// Span and resource attribute keys.
const (
	UploadIDKey     = attribute.Key("trackdrop.upload.id")
	RetryCountKey   = attribute.Key("trackdrop.upload.retry_count")
	JobIDKey        = attribute.Key("trackdrop.job.id")
	RoleKey         = attribute.Key("trackdrop.role")
	QueueBackendKey = attribute.Key("trackdrop.queue_backend")
	ExtractorKey    = attribute.Key("trackdrop.extractor")
)

var tracer trace.Tracer

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Role is "api", "worker" or "cleanup".
	Role         string
	QueueBackend string
	// Extractor is the metadata strategy; empty for processes that never extract.
	Extractor    string
	OTLPEndpoint string
	Enabled      bool
	SampleRate   float64
}

func (c *Config) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.ServiceName),
		semconv.ServiceVersionKey.String(c.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(c.Environment),
	}
	if c.Role != "" {
		attrs = append(attrs, RoleKey.String(c.Role))
	}
	if c.QueueBackend != "" {
		attrs = append(attrs, QueueBackendKey.String(c.QueueBackend))
	}
	if c.Extractor != "" {
		attrs = append(attrs, ExtractorKey.String(c.Extractor))
	}
	return attrs
}

// Init installs the global tracer provider. With tracing disabled it only
// resolves a tracer from the no-op global provider.
func Init(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		tracer = otel.Tracer(instrumentationName)
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(cfg.attributes()...),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(instrumentationName)

	return tp.Shutdown, nil
}

// sampler applies rate to new traces only. A worker span whose job carried a
// sampled parent is always kept, so one upload is traced end to end or not at all.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// UploadAttributes tags the current span with the upload being worked on.
func UploadAttributes(ctx context.Context, uploadID string, retryCount int32) {
	trace.SpanFromContext(ctx).SetAttributes(
		UploadIDKey.String(uploadID),
		RetryCountKey.Int(int(retryCount)),
	)
}
