package planner

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
	"repoquery/internal/sqltype"
	"repoquery/internal/sqlutil"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// SelectColumn describes one positional column of the select list.
type SelectColumn struct {
	// Alias is the root alias or the join alias the column belongs to.
	Alias      string
	Field      string
	Column     string
	Kind       sqltype.Kind
	BinaryUUID bool
	Identifier bool
}

// Key returns the flat result key used by scalar hydration: alias_field.
func (c SelectColumn) Key() string {
	return c.Alias + "_" + c.Field
}

// Join is a resolved relation directive.
type Join struct {
	Alias string
	// ParentAlias is the root alias or an earlier join alias.
	ParentAlias string
	Association metadata.Association
	Entity      *metadata.Entity
	Type        descriptor.JoinType
	IndexBy     string
	// Fields is the projected field list; empty means all fields.
	Fields  []string
	clauses []joinClause
}

// Collection reports whether the join yields many entities per parent.
func (j *Join) Collection() bool {
	return j.Association.IsCollection()
}

type joinClause struct {
	table string
	alias string
	on    string
	args  []any
}

// OrderClause is an applied sort entry.
type OrderClause struct {
	Alias     string
	Field     string
	Column    string
	Direction string
}

// Plan is the resolved query for one descriptor. It is built per call and never shared.
type Plan struct {
	Dialect       sqlutil.Dialect
	Root          *metadata.Entity
	RootAlias     string
	Columns       []SelectColumn
	Joins         []*Join
	Predicates    []sq.Sqlizer
	Order         []OrderClause
	Limit         *int
	Offset        *int
	IndexBy       string
	HydrationMode descriptor.HydrationMode
	// UnresolvedSort holds the sort entries that could not be attached.
	UnresolvedSort []descriptor.SortEntry
}

// Join returns the join registered under alias.
func (p *Plan) Join(alias string) (*Join, bool) {
	for _, j := range p.Joins {
		if j.Alias == alias {
			return j, true
		}
	}
	return nil, false
}

// entityForAlias returns the entity bound to the root alias or a join alias.
func (p *Plan) entityForAlias(alias string) (*metadata.Entity, bool) {
	if alias == p.RootAlias {
		return p.Root, true
	}
	if j, ok := p.Join(alias); ok {
		return j.Entity, true
	}
	return nil, false
}

func (p *Plan) column(alias, column string) string {
	return p.Dialect.QualifiedColumn(alias, column)
}

// ToSQL renders the select statement.
func (p *Plan) ToSQL() (SQLQuery, error) {
	columns := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		columns[i] = p.column(c.Alias, c.Column)
	}

	builder := p.baseBuilder(columns...)
	if len(p.Order) > 0 {
		clauses := make([]string, len(p.Order))
		for i, o := range p.Order {
			clauses[i] = p.column(o.Alias, o.Column) + " " + o.Direction
		}
		builder = builder.OrderBy(clauses...)
	}
	if p.Limit != nil {
		builder = builder.Limit(uint64(*p.Limit))
	}
	if p.Offset != nil {
		if p.Limit == nil && p.Dialect.OffsetNeedsLimit {
			builder = builder.Limit(sqlutil.UnboundedLimit)
		}
		builder = builder.Offset(uint64(*p.Offset))
	}

	query, args, err := builder.PlaceholderFormat(p.Dialect.Placeholder).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// CountSQL renders a query counting the distinct root entities matched by the
// plan's joins and predicates. Order, limit, offset and projection are ignored.
func (p *Plan) CountSQL() (SQLQuery, error) {
	ids := make([]string, len(p.Root.Identifier))
	for i, name := range p.Root.Identifier {
		f, _ := p.Root.Field(name)
		ids[i] = p.column(p.RootAlias, f.ColumnName())
	}

	var builder sq.SelectBuilder
	switch {
	case len(ids) == 0:
		builder = p.baseBuilder("COUNT(*)")
	case len(ids) == 1:
		builder = p.baseBuilder("COUNT(DISTINCT " + ids[0] + ")")
	default:
		inner := p.baseBuilder(ids...).Distinct()
		builder = sq.Select("COUNT(*)").FromSelect(inner, p.Dialect.QuoteIdentifier("count_source"))
	}

	query, args, err := builder.PlaceholderFormat(p.Dialect.Placeholder).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// baseBuilder renders FROM, joins and predicates with '?' placeholders.
func (p *Plan) baseBuilder(columns ...string) sq.SelectBuilder {
	builder := sq.Select(columns...).
		From(p.Dialect.QuoteIdentifier(p.Root.Table) + " AS " + p.Dialect.QuoteIdentifier(p.RootAlias))
	for _, j := range p.Joins {
		for _, c := range j.clauses {
			join := p.Dialect.QuoteIdentifier(c.table) + " AS " + p.Dialect.QuoteIdentifier(c.alias) + " ON " + c.on
			if j.Type == descriptor.JoinInner {
				builder = builder.Join(join, c.args...)
			} else {
				builder = builder.LeftJoin(join, c.args...)
			}
		}
	}
	for _, pred := range p.Predicates {
		builder = builder.Where(pred)
	}
	return builder
}

// joinKeyCondition renders left[i] = right[i] pairs joined with AND.
func (p *Plan) joinKeyCondition(leftAlias string, leftColumns []string, rightAlias string, rightColumns []string) string {
	parts := make([]string, len(leftColumns))
	for i := range leftColumns {
		parts[i] = p.column(leftAlias, leftColumns[i]) + " = " + p.column(rightAlias, rightColumns[i])
	}
	return strings.Join(parts, " AND ")
}
