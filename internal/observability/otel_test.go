package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider(t *testing.T) {
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	}

	mp, err := InitMeterProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.reader)

	metrics, err := InitRepositoryMetrics()
	require.NoError(t, err)
	metrics.RecordQuery(context.Background(), "blog.Post", QueryKindFetchAll, 3*time.Millisecond, 4, nil)

	summary, err := mp.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), summary["repoquery.queries.total"])
	assert.Equal(t, float64(1), summary["repoquery.query.duration"])

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func newTestMetrics(t *testing.T) (*RepositoryMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewRepositoryMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]float64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return Summarize(rm)
}

func TestRepositoryMetrics_RecordQuery(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordQuery(ctx, "blog.Post", QueryKindFetchAll, time.Millisecond, 10, nil)
	metrics.RecordQuery(ctx, "blog.Post", QueryKindCount, time.Millisecond, 1, nil)
	metrics.RecordQuery(ctx, "blog.Post", QueryKindFetchOne, time.Millisecond, 0, errors.New("boom"))

	summary := collect(t, reader)
	assert.Equal(t, float64(3), summary["repoquery.queries.total"])
	assert.Equal(t, float64(1), summary["repoquery.errors.total"])
	assert.Equal(t, float64(2), summary["repoquery.result.rows"])
}

func TestRepositoryMetrics_CacheAndSort(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordCacheLookup(ctx, "posts", true)
	metrics.RecordCacheLookup(ctx, "posts", false)
	metrics.RecordCacheLookup(ctx, "posts", false)
	metrics.RecordUnresolvedSort(ctx, "blog.Post", 2)
	metrics.RecordUnresolvedSort(ctx, "blog.Post", 0)

	summary := collect(t, reader)
	assert.Equal(t, float64(1), summary["repoquery.cache.hits"])
	assert.Equal(t, float64(2), summary["repoquery.cache.misses"])
	assert.Equal(t, float64(2), summary["repoquery.sort.unresolved"])
}

func TestRepositoryMetrics_NilSafe(t *testing.T) {
	var metrics *RepositoryMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordQuery(ctx, "blog.Post", QueryKindFetchAll, time.Millisecond, 1, nil)
		metrics.RecordCacheLookup(ctx, "posts", true)
		metrics.RecordUnresolvedSort(ctx, "blog.Post", 1)
	})
}

func TestStartSpan_RecordsAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := StartSpan(context.Background(), "repository.fetch_all", attribute.String("entity", "blog.Post"))
	RecordSpanError(span, nil)
	RecordSpanError(span, errors.New("query failed"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "repository.fetch_all", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("entity", "blog.Post"))
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "query failed", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
}

func TestInitTracerProvider_WithExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(Config{ServiceName: "test-service", TraceSampleRatio: 1}, exporter)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "planner.plan")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background(), discardLogger()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "planner.plan", spans[0].Name)
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	never := traceSamplerForRatio(0)
	always := traceSamplerForRatio(1)

	decisionNever := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decision := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decision)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decision = sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decision)
}
