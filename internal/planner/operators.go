package planner

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"repoquery/internal/repoerr"
)

// predicateBuilder renders one filter predicate for a qualified, quoted column.
type predicateBuilder func(column string, value any) (sq.Sqlizer, error)

// operator is one entry of the filter operator registry.
type operator struct {
	name string
	// bindsValue is false for operators that ignore or interpret the value themselves.
	bindsValue bool
	build      predicateBuilder
}

// operatorRegistry maps lower-cased operator names to predicate builders.
// It is fixed after construction.
type operatorRegistry struct {
	byName map[string]operator
}

func newOperatorRegistry(ops ...operator) *operatorRegistry {
	r := &operatorRegistry{byName: make(map[string]operator, len(ops))}
	for _, op := range ops {
		key := strings.ToLower(op.name)
		if key == "" || op.build == nil {
			panic(fmt.Sprintf("planner: invalid operator %q", op.name))
		}
		if _, exists := r.byName[key]; exists {
			panic(fmt.Sprintf("planner: duplicate operator %q", op.name))
		}
		r.byName[key] = op
	}
	return r
}

func (r *operatorRegistry) lookup(name string) (operator, bool) {
	op, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return op, ok
}

func (r *operatorRegistry) names() []string {
	names := make([]string, 0, len(r.byName))
	for _, op := range r.byName {
		names = append(names, op.name)
	}
	sort.Strings(names)
	return names
}

var filterOperators = newOperatorRegistry(
	operator{name: "eq", bindsValue: true, build: func(col string, v any) (sq.Sqlizer, error) { return sq.Eq{col: v}, nil }},
	operator{name: "neq", bindsValue: true, build: func(col string, v any) (sq.Sqlizer, error) { return sq.NotEq{col: v}, nil }},
	operator{name: "lt", bindsValue: true, build: scalarOperator("lt", func(col string, v any) sq.Sqlizer { return sq.Lt{col: v} })},
	operator{name: "lte", bindsValue: true, build: scalarOperator("lte", func(col string, v any) sq.Sqlizer { return sq.LtOrEq{col: v} })},
	operator{name: "gt", bindsValue: true, build: scalarOperator("gt", func(col string, v any) sq.Sqlizer { return sq.Gt{col: v} })},
	operator{name: "gte", bindsValue: true, build: scalarOperator("gte", func(col string, v any) sq.Sqlizer { return sq.GtOrEq{col: v} })},
	operator{name: "in", bindsValue: true, build: func(col string, v any) (sq.Sqlizer, error) { return sq.Eq{col: asList(v)}, nil }},
	operator{name: "notIn", bindsValue: true, build: func(col string, v any) (sq.Sqlizer, error) { return sq.NotEq{col: asList(v)}, nil }},
	operator{name: "like", bindsValue: true, build: scalarOperator("like", func(col string, v any) sq.Sqlizer { return sq.Like{col: v} })},
	operator{name: "notLike", bindsValue: true, build: scalarOperator("notLike", func(col string, v any) sq.Sqlizer { return sq.NotLike{col: v} })},
	operator{name: "nlike", bindsValue: true, build: scalarOperator("nlike", func(col string, v any) sq.Sqlizer { return sq.NotLike{col: v} })},
	operator{name: "isNull", build: func(col string, _ any) (sq.Sqlizer, error) { return sq.Eq{col: nil}, nil }},
	operator{name: "isNotNull", build: func(col string, _ any) (sq.Sqlizer, error) { return sq.NotEq{col: nil}, nil }},
	operator{name: "null", build: buildNullCheck},
	operator{name: "between", bindsValue: true, build: buildBetween},
)

// Operators lists the filter operator names accepted after ':' in a parameter key.
func Operators() []string {
	return filterOperators.names()
}

func scalarOperator(name string, build func(col string, v any) sq.Sqlizer) predicateBuilder {
	return func(col string, v any) (sq.Sqlizer, error) {
		if isList(v) {
			return nil, repoerr.InvalidArgument("operator %s expects a single value, got %T", name, v)
		}
		return build(col, v), nil
	}
}

// buildNullCheck renders IS NULL when the value is true (or "true"), IS NOT NULL otherwise.
func buildNullCheck(col string, v any) (sq.Sqlizer, error) {
	if fmt.Sprint(v) == "true" {
		return sq.Eq{col: nil}, nil
	}
	return sq.NotEq{col: nil}, nil
}

func buildBetween(col string, v any) (sq.Sqlizer, error) {
	bounds := asList(v)
	if len(bounds) != 2 {
		return nil, repoerr.InvalidArgument("operator between expects exactly two values, got %d", len(bounds))
	}
	return sq.Expr(col+" BETWEEN ? AND ?", bounds[0], bounds[1]), nil
}

// isList reports whether v is a sequence value. Byte slices are scalars.
func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// asList converts a sequence value to []any and wraps scalars into a one-element list.
func asList(v any) []any {
	if !isList(v) {
		return []any{v}
	}
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
