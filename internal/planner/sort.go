package planner

import (
	"strings"

	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
)

// SortResolution splits requested sort entries into applied order clauses and
// entries that could not be resolved.
type SortResolution struct {
	Applied   []OrderClause
	Remaining []descriptor.SortEntry
}

// ResolveSort resolves sort entries against the plan's root entity and joins. It
// neither modifies the plan nor the entries.
//
// Resolution is best-effort: an entry whose field or alias is unknown, or whose
// direction is neither ASC nor DESC, is returned in Remaining and never causes an
// error. An unqualified field resolves against the root entity. A qualified
// "alias.field" resolves through the join registered under alias by following its
// association from the parent entity.
func ResolveSort(plan *Plan, meta metadata.Accessor, entries []descriptor.SortEntry) SortResolution {
	var out SortResolution
	for _, entry := range entries {
		clause, ok := resolveSortEntry(plan, meta, entry)
		if !ok {
			out.Remaining = append(out.Remaining, entry)
			continue
		}
		out.Applied = append(out.Applied, clause)
	}
	return out
}

func resolveSortEntry(plan *Plan, meta metadata.Accessor, entry descriptor.SortEntry) (OrderClause, bool) {
	direction, ok := normalizeDirection(entry.Direction)
	if !ok {
		return OrderClause{}, false
	}

	alias, fieldName := plan.RootAlias, entry.Field
	if idx := strings.Index(entry.Field, "."); idx != -1 {
		alias, fieldName = entry.Field[:idx], entry.Field[idx+1:]
	}

	entity := plan.Root
	if alias != plan.RootAlias {
		join, ok := plan.Join(alias)
		if !ok {
			return OrderClause{}, false
		}
		parent, ok := plan.entityForAlias(join.ParentAlias)
		if !ok {
			return OrderClause{}, false
		}
		target, err := meta.AssociationTarget(parent.Name, join.Association.Name)
		if err != nil {
			return OrderClause{}, false
		}
		entity = target
	}

	field, ok := entity.Field(fieldName)
	if !ok {
		return OrderClause{}, false
	}
	return OrderClause{
		Alias:     alias,
		Field:     field.Name,
		Column:    field.ColumnName(),
		Direction: direction,
	}, true
}

func normalizeDirection(direction string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "", "ASC":
		return "ASC", true
	case "DESC":
		return "DESC", true
	default:
		return "", false
	}
}
