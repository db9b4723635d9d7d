package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const ServiceName = "storefront-cart"

// InitTracerProvider exports spans over OTLP/gRPC when endpoint is set.
// With an empty endpoint spans are still created, and dropped.
// e.g. OTEL_EXPORTER_OTLP_ENDPOINT=otel-collector:4317
func InitTracerProvider(ctx context.Context, endpoint, version string) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	}
	if endpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// PersistenceMetrics counts cart persistence failures that are logged
// but not returned to callers.
type PersistenceMetrics struct {
	failures metric.Int64Counter
	log      *zap.Logger
}

// NewPersistenceMetrics registers its instruments on meter. A nil meter
// uses the global provider.
func NewPersistenceMetrics(meter metric.Meter, log *zap.Logger) (*PersistenceMetrics, error) {
	if meter == nil {
		meter = otel.Meter(ServiceName)
	}
	if log == nil {
		log = zap.NewNop()
	}
	failures, err := meter.Int64Counter("cart.persistence.failures",
		metric.WithDescription("Cart snapshot saves and loads that failed"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	return &PersistenceMetrics{failures: failures, log: log}, nil
}

func (m *PersistenceMetrics) RecordFailure(ctx context.Context, op string, err error) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	m.log.Debug("persistence failure recorded", zap.String("op", op), zap.Error(err))
}
