// Package planner turns a query descriptor into a parameterized SQL plan. It
// resolves the root alias, joins, filter parameters and sort entries against
// entity metadata and renders the statement with squirrel.
package planner

import (
	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
	"repoquery/internal/repoerr"
	"repoquery/internal/sqlutil"
)

// Planner builds plans for entities known to a metadata accessor.
type Planner struct {
	meta    metadata.Accessor
	dialect sqlutil.Dialect
	limits  PlanLimits
}

// Option configures a Planner.
type Option func(*Planner)

// WithDialect sets the SQL dialect. MySQL is the default.
func WithDialect(d sqlutil.Dialect) Option {
	return func(p *Planner) { p.dialect = d }
}

// WithLimits sets the plan limits. Zero values disable a limit.
func WithLimits(limits PlanLimits) Option {
	return func(p *Planner) { p.limits = limits }
}

// New creates a planner.
func New(meta metadata.Accessor, opts ...Option) *Planner {
	p := &Planner{meta: meta, dialect: sqlutil.MySQL}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dialect returns the planner's SQL dialect.
func (p *Planner) Dialect() sqlutil.Dialect {
	return p.dialect
}

// Plan resolves d against the entity named entityName. The descriptor is not modified.
// Joins are resolved first, then filters, then sort, so filters and sort entries may
// refer to join aliases. Sort entries that cannot be resolved are recorded in
// Plan.UnresolvedSort instead of failing.
func (p *Planner) Plan(entityName string, d *descriptor.Descriptor) (*Plan, error) {
	if d == nil {
		return nil, repoerr.InvalidArgument("descriptor is nil")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := validateLimits(d, p.limits); err != nil {
		return nil, err
	}

	root, err := p.meta.Entity(entityName)
	if err != nil {
		return nil, err
	}
	alias := root.Alias
	if alias == "" {
		alias = metadata.RootAlias(root.Name, root.Namespace)
	}

	plan := &Plan{
		Dialect:       p.dialect,
		Root:          root,
		RootAlias:     alias,
		Limit:         d.Limit,
		Offset:        d.Offset,
		HydrationMode: d.HydrationMode,
	}

	if d.IndexBy != "" {
		if !root.HasField(d.IndexBy) {
			return nil, repoerr.UnknownField(root.Name, d.IndexBy)
		}
		plan.IndexBy = d.IndexBy
	}

	// A single scalar reads the first selected column, so a partial projection keeps
	// the requested order without the implicit identifier.
	withIdentifier := d.HydrationMode != descriptor.HydrateSingleScalar
	rootColumns, err := projectColumns(root, alias, d.Fields, d.IndexBy, withIdentifier)
	if err != nil {
		return nil, err
	}
	plan.Columns = rootColumns

	if err := p.resolveRelations(plan, d.Relations); err != nil {
		return nil, err
	}
	if err := resolveFilters(plan, d.Parameters); err != nil {
		return nil, err
	}

	sorted := ResolveSort(plan, p.meta, d.Sort)
	plan.Order = sorted.Applied
	plan.UnresolvedSort = sorted.Remaining

	return plan, nil
}

// projectColumns returns the select columns for entity under alias. An empty
// field list selects every field; otherwise the identifier (when withIdentifier is
// set), the listed fields and the index-by field are selected in that order without
// duplicates.
func projectColumns(entity *metadata.Entity, alias string, fields []string, indexBy string, withIdentifier bool) ([]SelectColumn, error) {
	names := entity.FieldNames()
	if len(fields) > 0 {
		names = make([]string, 0, len(entity.Identifier)+len(fields)+1)
		seen := make(map[string]struct{}, cap(names))
		add := func(name string) {
			if _, ok := seen[name]; ok {
				return
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
		if withIdentifier {
			for _, id := range entity.Identifier {
				add(id)
			}
		}
		for _, name := range fields {
			if !entity.HasField(name) {
				return nil, repoerr.UnknownField(entity.Name, name)
			}
			add(name)
		}
		if indexBy != "" {
			add(indexBy)
		}
	}

	columns := make([]SelectColumn, 0, len(names))
	for _, name := range names {
		f, _ := entity.Field(name)
		columns = append(columns, SelectColumn{
			Alias:      alias,
			Field:      f.Name,
			Column:     f.ColumnName(),
			Kind:       f.Kind,
			BinaryUUID: f.BinaryUUID(),
			Identifier: entity.IsIdentifier(f.Name),
		})
	}
	return columns, nil
}
