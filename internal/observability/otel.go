// Package observability provides OpenTelemetry integration for metrics and tracing.
// Providers are created with caller-supplied readers and exporters so the repository
// layer can be embedded in any process.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config holds OpenTelemetry configuration
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	TraceSampleRatio float64
}

func newResource(cfg Config) (*resource.Resource, error) {
	// No schema URL to avoid conflicts with resource.Default().
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// MeterProvider wraps the OpenTelemetry meter provider
type MeterProvider struct {
	provider *metric.MeterProvider
	reader   *metric.ManualReader
}

// InitMeterProvider initializes OpenTelemetry metrics backed by a manual reader.
// Collected data is pulled on demand with Collect.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	)

	otel.SetMeterProvider(provider)

	return &MeterProvider{
		provider: provider,
		reader:   reader,
	}, nil
}

// Collect gathers the current metric data.
func (mp *MeterProvider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if err := mp.reader.Collect(ctx, &rm); err != nil {
		return rm, fmt.Errorf("failed to collect metrics: %w", err)
	}
	return rm, nil
}

// Summary flattens collected metrics into instrument name -> total.
// Counters report their sum and histograms their observation count.
func (mp *MeterProvider) Summary(ctx context.Context) (map[string]float64, error) {
	rm, err := mp.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(rm), nil
}

// Summarize flattens resource metrics into instrument name -> total.
func Summarize(rm metricdata.ResourceMetrics) map[string]float64 {
	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += float64(dp.Value)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += float64(dp.Count)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += float64(dp.Count)
				}
			}
		}
	}
	return out
}

// Shutdown gracefully shuts down the meter provider
func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown meter provider", slog.String("error", err.Error()))
		return err
	}

	logger.Info("meter provider shutdown successfully")
	return nil
}

// TracerProvider wraps the OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracerProvider initializes OpenTelemetry tracing. A nil exporter yields a
// provider that samples and propagates spans without exporting them.
func InitTracerProvider(cfg Config, exporter sdktrace.SpanExporter) (*TracerProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(traceSamplerForRatio(cfg.TraceSampleRatio)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
	}, nil
}

func traceSamplerForRatio(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
		return err
	}

	logger.Info("tracer provider shutdown successfully")
	return nil
}
