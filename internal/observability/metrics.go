package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query kinds recorded by RepositoryMetrics.
const (
	QueryKindFetchOne = "fetch_one"
	QueryKindFetchAll = "fetch_all"
	QueryKindCount    = "count"
)

// RepositoryMetrics holds metrics for repository reads.
// A nil *RepositoryMetrics records nothing.
type RepositoryMetrics struct {
	queryDuration  metric.Float64Histogram
	queryCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
	resultRows     metric.Int64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	unresolvedSort metric.Int64Counter
}

// InitRepositoryMetrics creates repository metrics on the global meter provider.
func InitRepositoryMetrics() (*RepositoryMetrics, error) {
	return NewRepositoryMetrics(otel.Meter(instrumentationName))
}

// NewRepositoryMetrics creates repository metrics on meter.
func NewRepositoryMetrics(meter metric.Meter) (*RepositoryMetrics, error) {
	queryDuration, err := meter.Float64Histogram(
		"repoquery.query.duration",
		metric.WithDescription("Duration of repository queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"repoquery.queries.total",
		metric.WithDescription("Total number of repository queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"repoquery.errors.total",
		metric.WithDescription("Total number of failed repository queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"repoquery.result.rows",
		metric.WithDescription("Number of SQL rows read by repository queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"repoquery.cache.hits",
		metric.WithDescription("Number of result cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"repoquery.cache.misses",
		metric.WithDescription("Number of result cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	unresolvedSort, err := meter.Int64Counter(
		"repoquery.sort.unresolved",
		metric.WithDescription("Number of sort entries dropped because they did not resolve"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unresolved sort counter: %w", err)
	}

	return &RepositoryMetrics{
		queryDuration:  queryDuration,
		queryCounter:   queryCounter,
		errorCounter:   errorCounter,
		resultRows:     resultRows,
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
		unresolvedSort: unresolvedSort,
	}, nil
}

// RecordQuery records one repository call.
func (m *RepositoryMetrics) RecordQuery(ctx context.Context, entity, kind string, duration time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", kind),
		attribute.Bool("has_error", err != nil),
	)
	m.queryDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.queryCounter.Add(ctx, 1, attrs)
	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("kind", kind),
		))
		return
	}
	m.resultRows.Record(ctx, int64(rows), metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", kind),
	))
}

// RecordCacheLookup records a result cache hit or miss for region.
func (m *RepositoryMetrics) RecordCacheLookup(ctx context.Context, region string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("region", region))
	if hit {
		m.cacheHits.Add(ctx, 1, attrs)
		return
	}
	m.cacheMisses.Add(ctx, 1, attrs)
}

// RecordUnresolvedSort counts sort entries that were dropped for entity.
func (m *RepositoryMetrics) RecordUnresolvedSort(ctx context.Context, entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.unresolvedSort.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("entity", entity),
	))
}
