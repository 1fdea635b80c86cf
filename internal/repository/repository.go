// Package repository executes query descriptors against one root entity. It plans
// the query, applies result caching, runs it through a query executor and hydrates
// the rows into the requested shape.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"repoquery/internal/dbexec"
	"repoquery/internal/descriptor"
	"repoquery/internal/hydrate"
	"repoquery/internal/logging"
	"repoquery/internal/observability"
	"repoquery/internal/planner"
	"repoquery/internal/repoerr"
	"repoquery/internal/resultcache"
)

// Repository runs descriptors against a single root entity.
type Repository struct {
	entity           string
	planner          *planner.Planner
	exec             dbexec.QueryExecutor
	loader           *resultcache.Loader
	defaultTTL       time.Duration
	defaultHydration descriptor.HydrationMode
	logger           *logging.Logger
	metrics          *observability.RepositoryMetrics
}

// Option configures a Repository.
type Option func(*Repository)

// WithCache enables result caching for descriptors that carry cache options.
// defaultTTL applies when a descriptor sets no TTL.
func WithCache(cache resultcache.Cache, defaultTTL time.Duration) Option {
	return func(r *Repository) {
		if cache != nil {
			r.loader = resultcache.NewLoader(cache)
		}
		r.defaultTTL = defaultTTL
	}
}

// WithLoader shares a cache loader between repositories so concurrent fills coalesce.
func WithLoader(loader *resultcache.Loader, defaultTTL time.Duration) Option {
	return func(r *Repository) {
		r.loader = loader
		r.defaultTTL = defaultTTL
	}
}

// WithDefaultHydration sets the hydration mode for map inputs that do not name one.
func WithDefaultHydration(mode descriptor.HydrationMode) Option {
	return func(r *Repository) { r.defaultHydration = mode }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *observability.RepositoryMetrics) Option {
	return func(r *Repository) { r.metrics = metrics }
}

// New creates a repository for entity.
func New(entity string, p *planner.Planner, exec dbexec.QueryExecutor, opts ...Option) *Repository {
	r := &Repository{
		entity:  entity,
		planner: p,
		exec:    exec,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entity returns the root entity name.
func (r *Repository) Entity() string {
	return r.entity
}

// Paginator carries the total number of rows matched by a paged query.
type Paginator struct {
	Total  int64 `json:"total"`
	Limit  *int  `json:"limit,omitempty"`
	Offset *int  `json:"offset,omitempty"`
}

// PageCount returns the number of pages of Limit rows. It is 1 when there is no limit.
func (p *Paginator) PageCount() int64 {
	if p.Limit == nil || *p.Limit <= 0 {
		return 1
	}
	limit := int64(*p.Limit)
	return (p.Total + limit - 1) / limit
}

// HasNext reports whether rows remain after the current page.
func (p *Paginator) HasNext() bool {
	if p.Limit == nil {
		return false
	}
	offset := 0
	if p.Offset != nil {
		offset = *p.Offset
	}
	return int64(offset+*p.Limit) < p.Total
}

// ResultSet is the output of FetchAll.
type ResultSet struct {
	Items []any `json:"items"`
	// Index is keyed by the root index-by value when the descriptor sets one.
	Index map[string]any `json:"index,omitempty"`
	// Paginator is nil unless the descriptor requests available row counts.
	Paginator *Paginator `json:"paginator,omitempty"`
}

// Explanation describes the SQL a descriptor would run.
type Explanation struct {
	SQL      string `json:"sql"`
	Args     []any  `json:"args"`
	CountSQL string `json:"count_sql,omitempty"`
	// CountArgs is set with CountSQL when the descriptor requests available row counts.
	CountArgs []any `json:"count_args,omitempty"`
	// UnresolvedSort lists the sort entries that were not applied.
	UnresolvedSort []descriptor.SortEntry `json:"unresolved_sort,omitempty"`
}

// FetchOne returns the single hydrated result, or nil when the query matched no
// result or more than one.
func (r *Repository) FetchOne(ctx context.Context, input any) (any, error) {
	var out any
	err := r.run(ctx, observability.QueryKindFetchOne, input, func(ctx context.Context, call *call) (int, error) {
		rows, err := r.selectRows(ctx, call)
		if err != nil {
			return 0, err
		}
		if call.plan.HydrationMode == descriptor.HydrateSingleScalar {
			value, err := hydrate.SingleScalar(call.plan, rows)
			if errors.Is(err, hydrate.ErrNoResult) || errors.Is(err, hydrate.ErrNonUniqueResult) {
				call.logger.Debug("no single result", slog.Int("rows", len(rows)))
				return 0, nil
			}
			if err != nil {
				return 0, err
			}
			out = value
			return 1, nil
		}

		result, err := hydrate.Rows(call.plan, rows)
		if err != nil {
			return 0, err
		}
		if len(result.Items) != 1 {
			call.logger.Debug("no single result", slog.Int("items", len(result.Items)))
			return 0, nil
		}
		out = result.Items[0]
		return 1, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchAll returns every hydrated result. When the descriptor requests available
// row counts, a separate count query fills ResultSet.Paginator.
func (r *Repository) FetchAll(ctx context.Context, input any) (*ResultSet, error) {
	var out *ResultSet
	err := r.run(ctx, observability.QueryKindFetchAll, input, func(ctx context.Context, call *call) (int, error) {
		rows, err := r.selectRows(ctx, call)
		if err != nil {
			return 0, err
		}
		result, err := hydrate.Rows(call.plan, rows)
		if err != nil {
			return 0, err
		}
		out = &ResultSet{Items: result.Items, Index: result.Index}

		if call.desc.CountAvailableRows {
			total, err := r.countRows(ctx, call)
			if err != nil {
				return 0, err
			}
			out.Paginator = &Paginator{Total: total, Limit: call.desc.Limit, Offset: call.desc.Offset}
		}
		return len(out.Items), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of root entities matched by the descriptor's joins and
// filters. Sort, limit, offset and projection are ignored.
func (r *Repository) Count(ctx context.Context, input any) (int64, error) {
	var total int64
	err := r.run(ctx, observability.QueryKindCount, input, func(ctx context.Context, call *call) (int, error) {
		n, err := r.countRows(ctx, call)
		if err != nil {
			return 0, err
		}
		total = n
		return 1, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Explain plans input and returns the SQL without executing it.
func (r *Repository) Explain(input any) (*Explanation, error) {
	d, err := r.resolve(input)
	if err != nil {
		return nil, err
	}
	plan, err := r.planner.Plan(r.entity, d)
	if err != nil {
		return nil, err
	}
	query, err := plan.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to render query: %w", err)
	}
	out := &Explanation{SQL: query.SQL, Args: query.Args, UnresolvedSort: plan.UnresolvedSort}
	if d.CountAvailableRows {
		counted, err := plan.CountSQL()
		if err != nil {
			return nil, fmt.Errorf("failed to render count query: %w", err)
		}
		out.CountSQL = counted.SQL
		out.CountArgs = counted.Args
	}
	return out, nil
}

// EvictRegion drops every cached result of region.
func (r *Repository) EvictRegion(ctx context.Context, region string) error {
	if err := resultcache.ValidateRegion(region); err != nil {
		return repoerr.Wrap(repoerr.ErrInvalidArgument, err, "cannot evict cache region")
	}
	if r.loader == nil {
		return nil
	}
	if err := r.loader.EvictRegion(ctx, region); err != nil {
		return fmt.Errorf("failed to evict cache region %q: %w", region, err)
	}
	return nil
}

// call is the per-invocation state shared by the execution helpers.
type call struct {
	kind   string
	desc   *descriptor.Descriptor
	plan   *planner.Plan
	logger *logging.Logger
}

func (r *Repository) run(ctx context.Context, kind string, input any, body func(context.Context, *call) (int, error)) (err error) {
	start := time.Now()
	queryID := uuid.NewString()
	ctx = logging.WithQueryIDContext(ctx, queryID)
	ctx, span := observability.StartSpan(ctx, "repository."+kind,
		attribute.String("repoquery.entity", r.entity),
		attribute.String("repoquery.query_id", queryID),
	)
	rows := 0
	defer func() {
		observability.RecordSpanError(span, err)
		span.End()
		r.metrics.RecordQuery(ctx, r.entity, kind, time.Since(start), rows, err)
	}()

	logger := r.logger.WithQueryID(queryID).WithFields(
		slog.String("entity", r.entity),
		slog.String("kind", kind),
	)

	d, err := r.resolve(input)
	if err != nil {
		return err
	}
	plan, err := r.planner.Plan(r.entity, d)
	if err != nil {
		logger.Debug("query rejected", slog.String("error", err.Error()))
		return err
	}
	if len(plan.UnresolvedSort) > 0 {
		fields := make([]string, len(plan.UnresolvedSort))
		for i, entry := range plan.UnresolvedSort {
			fields[i] = entry.Field
		}
		logger.Debug("sort entries not applied", slog.String("fields", strings.Join(fields, ",")))
		r.metrics.RecordUnresolvedSort(ctx, r.entity, len(plan.UnresolvedSort))
	}

	rows, err = body(ctx, &call{kind: kind, desc: d, plan: plan, logger: logger})
	if err != nil {
		logger.Error("query failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}
	logger.Debug("query completed",
		slog.Int("results", rows),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// resolve normalizes input into a descriptor. Map inputs without a hydration mode
// use the repository default.
func (r *Repository) resolve(input any) (*descriptor.Descriptor, error) {
	d, err := descriptor.Resolve(input)
	if err != nil {
		return nil, err
	}
	if m, ok := input.(map[string]any); ok && !hasHydrationKey(m) {
		d.HydrationMode = r.defaultHydration
	}
	return d, nil
}

func hasHydrationKey(m map[string]any) bool {
	for key := range m {
		normalized := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(key))
		if normalized == "hydrationmode" {
			return true
		}
	}
	return false
}

func (r *Repository) selectRows(ctx context.Context, c *call) ([][]any, error) {
	query, err := c.plan.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to render query: %w", err)
	}
	c.logger.Debug("executing query", slog.String("sql", query.SQL), slog.Int("args", len(query.Args)))

	columns := len(c.plan.Columns)
	entry, err := r.load(ctx, c, query, func(ctx context.Context) (*resultcache.Entry, error) {
		rows, err := dbexec.QueryAll(ctx, r.exec, columns, query.SQL, query.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", r.entity, err)
		}
		return &resultcache.Entry{Rows: rows}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Rows, nil
}

func (r *Repository) countRows(ctx context.Context, c *call) (int64, error) {
	query, err := c.plan.CountSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to render count query: %w", err)
	}
	c.logger.Debug("executing count query", slog.String("sql", query.SQL), slog.Int("args", len(query.Args)))

	entry, err := r.load(ctx, c, query, func(ctx context.Context) (*resultcache.Entry, error) {
		n, err := dbexec.QueryInt64(ctx, r.exec, query.SQL, query.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", r.entity, err)
		}
		return &resultcache.Entry{Count: n}, nil
	})
	if err != nil {
		return 0, err
	}
	return entry.Count, nil
}

// load runs fill directly, or through the result cache when the descriptor asks
// for caching and the repository has one.
func (r *Repository) load(ctx context.Context, c *call, query planner.SQLQuery, fill func(context.Context) (*resultcache.Entry, error)) (*resultcache.Entry, error) {
	if c.desc.Cache == nil || r.loader == nil {
		return fill(ctx)
	}

	region := c.desc.Cache.Name
	if region == "" {
		region = r.entity
	}
	ttl := c.desc.Cache.TTL
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	key, err := resultcache.Key(region, query.SQL, query.Args)
	if err != nil {
		c.logger.Warn("result cache bypassed", slog.String("error", err.Error()))
		return fill(ctx)
	}

	loaded, err := r.loader.Load(ctx, key, ttl, fill)
	if loaded.CacheErr != nil {
		c.logger.Warn("result cache error", slog.String("region", region), slog.String("error", loaded.CacheErr.Error()))
	}
	if err != nil {
		return nil, err
	}
	r.metrics.RecordCacheLookup(ctx, region, loaded.Hit)
	c.logger.Debug("result cache lookup", slog.String("region", region), slog.Bool("hit", loaded.Hit))
	return loaded.Entry, nil
}
