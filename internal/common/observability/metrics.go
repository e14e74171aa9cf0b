package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability owns the OpenTelemetry meter and tracer providers for one service.
type Observability struct {
	meterProvider *metric.MeterProvider
	tracing       *tracing
	tracer        trace.Tracer
	predictions   otelmetric.Int64Counter
	inferenceTime otelmetric.Float64Histogram
}

// Options configure New. A nil Registerer uses the prometheus default registry.
type Options struct {
	Registerer     promclient.Registerer
	JaegerEndpoint string
	SampleRatio    float64
}

func New(serviceName string, opts Options) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}

	if opts.JaegerEndpoint != "" {
		t, err := newTracing(serviceName, opts.JaegerEndpoint, opts.SampleRatio)
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			o.tracing = t
			o.tracer = t.provider.Tracer(serviceName)
		}
	}

	var exporterOpts []prometheus.Option
	if opts.Registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(opts.Registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	predictions, _ := meter.Int64Counter(
		"churn.predictions",
		otelmetric.WithDescription("Number of churn predictions served"),
	)
	inferenceTime, _ := meter.Float64Histogram(
		"churn.inference.duration",
		otelmetric.WithDescription("End-to-end inference duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.predictions = predictions
	o.inferenceTime = inferenceTime
	return o
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// Tracer returns the service tracer; a no-op tracer when tracing is not configured.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordPrediction(ctx context.Context, label, source string) {
	if o.predictions != nil {
		o.predictions.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("label", label),
			attribute.String("source", source),
		))
	}
}

func (o *Observability) RecordInferenceDuration(ctx context.Context, duration time.Duration, status string) {
	if o.inferenceTime != nil {
		o.inferenceTime.Record(ctx, float64(duration.Microseconds())/1000, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		_ = o.tracing.provider.Shutdown(ctx)
	}
}
