package tracing

import (
	"context"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	errNoURL           = errors.New("URL is empty")
	errInvalidFraction = errors.New("trace ratio must be between 0 and 1")
)

// NewProvider exports spans over OTLP/HTTP to collectorURL and installs the
// provider and W3C propagators globally.
func NewProvider(ctx context.Context, svcName string, collectorURL url.URL, instanceID string, fraction float64) (*tracesdk.TracerProvider, error) {
	if collectorURL == (url.URL{}) {
		return nil, errNoURL
	}
	if fraction < 0 || fraction > 1 {
		return nil, errInvalidFraction
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(collectorURL.Host),
		otlptracehttp.WithURLPath(collectorURL.Path),
	}
	if collectorURL.Scheme != "https" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	attributes := []attribute.KeyValue{
		semconv.ServiceNameKey.String(svcName),
		attribute.String("host.id", instanceID),
	}
	hostAttr, err := resource.New(ctx, resource.WithHost(), resource.WithOSDescription())
	if err != nil {
		return nil, err
	}
	attributes = append(attributes, hostAttr.Attributes()...)

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.TraceIDRatioBased(fraction)),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attributes...)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Provider returns a noop provider when no collector is configured. The
// returned shutdown function is always safe to call.
func Provider(ctx context.Context, svcName string, collectorURL url.URL, instanceID string, fraction float64) (trace.TracerProvider, func(context.Context) error, error) {
	if collectorURL == (url.URL{}) {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	tp, err := NewProvider(ctx, svcName, collectorURL, instanceID, fraction)
	if err != nil {
		return nil, nil, err
	}

	return tp, tp.Shutdown, nil
}
