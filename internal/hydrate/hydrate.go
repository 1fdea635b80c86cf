// Package hydrate materializes scanned rows into the result shape selected by a
// plan's hydration mode.
package hydrate

import (
	"errors"
	"fmt"
	"strings"

	"repoquery/internal/descriptor"
	"repoquery/internal/planner"
	"repoquery/internal/sqltype"
	"repoquery/internal/uuidutil"
)

var (
	// ErrNoResult is returned by SingleScalar when the query matched no row.
	ErrNoResult = errors.New("no result")
	// ErrNonUniqueResult is returned by SingleScalar when the query matched more than one row.
	ErrNonUniqueResult = errors.New("non-unique result")
)

// Entity is a hydrated entity object.
type Entity struct {
	// Type is the entity name.
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
	// Related holds joined entities keyed by join alias.
	Related map[string]*Collection `json:"related,omitempty"`
}

// Get returns a field value.
func (e *Entity) Get(field string) any {
	return e.Fields[field]
}

// Collection holds the entities joined under one alias for one parent.
type Collection struct {
	Items []*Entity `json:"items"`
	// Index is set when the join has an index-by field.
	Index map[string]*Entity `json:"index,omitempty"`
}

// First returns the first entity, or nil when the collection is empty.
func (c *Collection) First() *Entity {
	if c == nil || len(c.Items) == 0 {
		return nil
	}
	return c.Items[0]
}

// Result is the hydrated output of one query.
type Result struct {
	Items []any
	// Index is keyed by the root index-by value when the plan has one.
	Index map[string]any
}

// Rows hydrates rows, positional per plan.Columns, using the plan's hydration mode.
// In single_scalar mode every row contributes its first column.
func Rows(plan *planner.Plan, rows [][]any) (*Result, error) {
	for i, row := range rows {
		if len(row) != len(plan.Columns) {
			return nil, fmt.Errorf("row %d has %d values, plan selects %d columns", i, len(row), len(plan.Columns))
		}
	}

	switch plan.HydrationMode {
	case descriptor.HydrateObject:
		entities := newObjectHydrator(plan).hydrate(rows)
		return entityResult(plan, entities, func(e *Entity) any { return e }), nil
	case descriptor.HydrateArray:
		entities := newObjectHydrator(plan).hydrate(rows)
		return entityResult(plan, entities, func(e *Entity) any { return toMap(plan, plan.RootAlias, e) }), nil
	case descriptor.HydrateScalar:
		return scalarResult(plan, rows), nil
	case descriptor.HydrateSingleScalar:
		out := &Result{Items: make([]any, 0, len(rows))}
		for _, row := range rows {
			out.Items = append(out.Items, convertValue(plan.Columns[0], row[0]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported hydration mode %d", plan.HydrationMode)
	}
}

// SingleScalar returns the first column of the only row.
func SingleScalar(plan *planner.Plan, rows [][]any) (any, error) {
	switch {
	case len(rows) == 0:
		return nil, ErrNoResult
	case len(rows) > 1:
		return nil, ErrNonUniqueResult
	case len(rows[0]) == 0 || len(plan.Columns) == 0:
		return nil, ErrNoResult
	}
	return convertValue(plan.Columns[0], rows[0][0]), nil
}

func entityResult(plan *planner.Plan, entities []*Entity, shape func(*Entity) any) *Result {
	out := &Result{Items: make([]any, 0, len(entities))}
	if plan.IndexBy != "" {
		out.Index = make(map[string]any, len(entities))
	}
	for _, e := range entities {
		item := shape(e)
		out.Items = append(out.Items, item)
		if out.Index != nil {
			out.Index[indexKey(e.Fields[plan.IndexBy])] = item
		}
	}
	return out
}

func scalarResult(plan *planner.Plan, rows [][]any) *Result {
	out := &Result{Items: make([]any, 0, len(rows))}
	indexKeyName := ""
	if plan.IndexBy != "" {
		out.Index = make(map[string]any, len(rows))
		indexKeyName = plan.RootAlias + "_" + plan.IndexBy
	}
	for _, row := range rows {
		item := make(map[string]any, len(row))
		for i, c := range plan.Columns {
			item[c.Key()] = convertValue(c, row[i])
		}
		out.Items = append(out.Items, item)
		if out.Index != nil {
			out.Index[indexKey(item[indexKeyName])] = item
		}
	}
	return out
}

// convertValue normalizes a scanned value: UUID columns become canonical strings and
// byte slices become strings unless the column holds binary data.
func convertValue(c planner.SelectColumn, v any) any {
	if v == nil {
		return nil
	}
	if c.Kind == sqltype.KindUUID {
		return uuidutil.Canonical(v)
	}
	if b, ok := v.([]byte); ok && !c.Kind.KeepsBytes() {
		return string(b)
	}
	return v
}

func indexKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func identityKey(values []any) (string, bool) {
	allNull := true
	parts := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			allNull = false
		}
		parts[i] = indexKey(v)
	}
	return strings.Join(parts, "\x00"), !allNull
}
