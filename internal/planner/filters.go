package planner

import (
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"repoquery/internal/metadata"
	"repoquery/internal/repoerr"
	"repoquery/internal/sqltype"
	"repoquery/internal/uuidutil"
)

// resolveFilters turns descriptor parameters into predicates. Keys are processed in
// sorted order and every predicate is AND-ed.
//
// A key naming a root field is an equality filter. Any other key must have the form
// "<field>:<operator>" or "<alias>.<field>:<operator>". The operator is checked before
// the field, so an unknown operator is reported even when the field is unknown too.
func resolveFilters(plan *Plan, params map[string]any) error {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]

		if field, ok := plan.Root.Field(key); ok {
			pred, err := buildFilter(plan, plan.RootAlias, field, mustOperator("eq"), value)
			if err != nil {
				return err
			}
			plan.Predicates = append(plan.Predicates, pred)
			continue
		}

		segments := strings.Split(key, ":")
		if len(segments) != 2 {
			return repoerr.InvalidArgument("invalid filter %q: expected a field name or <field>:<operator>", key)
		}
		fieldRef, opName := segments[0], segments[1]

		op, ok := filterOperators.lookup(opName)
		if !ok {
			return repoerr.BadMethodCall("unknown filter operator %q in %q", opName, key)
		}

		alias, fieldName := plan.RootAlias, fieldRef
		if idx := strings.Index(fieldRef, "."); idx != -1 {
			alias, fieldName = fieldRef[:idx], fieldRef[idx+1:]
		}
		entity, ok := plan.entityForAlias(alias)
		if !ok {
			return repoerr.UnknownAlias(alias)
		}
		field, ok := entity.Field(fieldName)
		if !ok {
			return repoerr.UnknownField(entity.Name, fieldName)
		}

		pred, err := buildFilter(plan, alias, field, op, value)
		if err != nil {
			return err
		}
		plan.Predicates = append(plan.Predicates, pred)
	}
	return nil
}

func buildFilter(plan *Plan, alias string, field metadata.Field, op operator, value any) (sq.Sqlizer, error) {
	if op.bindsValue {
		bound, err := bindValue(field, value)
		if err != nil {
			return nil, err
		}
		value = bound
	}
	return op.build(plan.column(alias, field.ColumnName()), value)
}

// bindValue converts filter values for UUID fields into their storage form.
func bindValue(field metadata.Field, value any) (any, error) {
	if field.Kind != sqltype.KindUUID || value == nil {
		return value, nil
	}
	binary := field.BinaryUUID()
	if isList(value) {
		items := asList(value)
		out := make([]any, len(items))
		for i, item := range items {
			bound, err := uuidutil.BindValue(item, binary)
			if err != nil {
				return nil, repoerr.Wrap(repoerr.ErrInvalidArgument, err, "invalid value for %s", field.Name)
			}
			out[i] = bound
		}
		return out, nil
	}
	bound, err := uuidutil.BindValue(value, binary)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.ErrInvalidArgument, err, "invalid value for %s", field.Name)
	}
	return bound, nil
}

func mustOperator(name string) operator {
	op, ok := filterOperators.lookup(name)
	if !ok {
		panic("planner: missing operator " + name)
	}
	return op
}
