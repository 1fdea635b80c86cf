package hydrate

import (
	"repoquery/internal/planner"
)

// aliasColumns groups the positional columns of one alias.
type aliasColumns struct {
	positions  []int
	identifier []int
}

// objectHydrator builds the entity tree for object and array hydration. Root
// entities and joined entities are de-duplicated by identifier.
type objectHydrator struct {
	plan     *planner.Plan
	columns  map[string]*aliasColumns
	children map[string][]*planner.Join
	roots    map[string]*Entity
	// seen de-duplicates joined entities per parent and alias.
	seen map[*Entity]map[string]map[string]*Entity
}

func newObjectHydrator(plan *planner.Plan) *objectHydrator {
	h := &objectHydrator{
		plan:     plan,
		columns:  make(map[string]*aliasColumns),
		children: make(map[string][]*planner.Join),
		roots:    make(map[string]*Entity),
		seen:     make(map[*Entity]map[string]map[string]*Entity),
	}
	for i, c := range plan.Columns {
		ac, ok := h.columns[c.Alias]
		if !ok {
			ac = &aliasColumns{}
			h.columns[c.Alias] = ac
		}
		ac.positions = append(ac.positions, i)
		if c.Identifier {
			ac.identifier = append(ac.identifier, i)
		}
	}
	for _, j := range plan.Joins {
		h.children[j.ParentAlias] = append(h.children[j.ParentAlias], j)
	}
	return h
}

func (h *objectHydrator) hydrate(rows [][]any) []*Entity {
	var out []*Entity
	for _, row := range rows {
		rowEntities := make(map[string]*Entity, len(h.plan.Joins)+1)

		root, created := h.rootEntity(row)
		if created {
			out = append(out, root)
		}
		rowEntities[h.plan.RootAlias] = root

		for _, j := range h.plan.Joins {
			parent := rowEntities[j.ParentAlias]
			if parent == nil {
				continue
			}
			rowEntities[j.Alias] = h.joinedEntity(parent, j, row)
		}
	}
	return out
}

func (h *objectHydrator) rootEntity(row []any) (*Entity, bool) {
	ac := h.columns[h.plan.RootAlias]
	key, ok := identityKey(pick(row, ac.identifier))
	if ok {
		if existing, found := h.roots[key]; found {
			return existing, false
		}
	}
	e := h.newEntity(h.plan.Root.Name, h.plan.RootAlias, row)
	if ok {
		h.roots[key] = e
	}
	return e, true
}

// joinedEntity attaches the entity joined under j for this row to parent. A LEFT
// join that matched nothing has all identifier columns NULL and yields nil.
func (h *objectHydrator) joinedEntity(parent *Entity, j *planner.Join, row []any) *Entity {
	ac := h.columns[j.Alias]
	idValues := pick(row, ac.identifier)
	if len(ac.identifier) == 0 {
		idValues = pick(row, ac.positions)
	}
	key, ok := identityKey(idValues)
	if !ok {
		return nil
	}

	byAlias, found := h.seen[parent]
	if !found {
		byAlias = make(map[string]map[string]*Entity)
		h.seen[parent] = byAlias
	}
	byKey, found := byAlias[j.Alias]
	if !found {
		byKey = make(map[string]*Entity)
		byAlias[j.Alias] = byKey
	}
	if existing, found := byKey[key]; found {
		return existing
	}

	e := h.newEntity(j.Entity.Name, j.Alias, row)
	byKey[key] = e

	collection := parent.Related[j.Alias]
	collection.Items = append(collection.Items, e)
	if j.IndexBy != "" {
		if collection.Index == nil {
			collection.Index = make(map[string]*Entity)
		}
		collection.Index[indexKey(e.Fields[j.IndexBy])] = e
	}
	return e
}

func (h *objectHydrator) newEntity(entityName, alias string, row []any) *Entity {
	ac := h.columns[alias]
	e := &Entity{
		Type:    entityName,
		Fields:  make(map[string]any, len(ac.positions)),
		Related: make(map[string]*Collection, len(h.children[alias])),
	}
	for _, pos := range ac.positions {
		c := h.plan.Columns[pos]
		e.Fields[c.Field] = convertValue(c, row[pos])
	}
	for _, child := range h.children[alias] {
		e.Related[child.Alias] = &Collection{}
	}
	return e
}

// toMap converts an entity tree to plain maps. Collection joins become a list, or a
// map keyed by the index-by value; single-valued joins become a map or nil.
func toMap(plan *planner.Plan, alias string, e *Entity) map[string]any {
	out := make(map[string]any, len(e.Fields)+len(e.Related))
	for k, v := range e.Fields {
		out[k] = v
	}
	for _, j := range plan.Joins {
		if j.ParentAlias != alias {
			continue
		}
		collection := e.Related[j.Alias]
		switch {
		case !j.Collection():
			if first := collection.First(); first != nil {
				out[j.Alias] = toMap(plan, j.Alias, first)
			} else {
				out[j.Alias] = nil
			}
		case j.IndexBy != "":
			indexed := make(map[string]any, len(collection.Items))
			for _, item := range collection.Items {
				indexed[indexKey(item.Fields[j.IndexBy])] = toMap(plan, j.Alias, item)
			}
			out[j.Alias] = indexed
		default:
			items := make([]any, 0, len(collection.Items))
			for _, item := range collection.Items {
				items = append(items, toMap(plan, j.Alias, item))
			}
			out[j.Alias] = items
		}
	}
	return out
}

func pick(row []any, positions []int) []any {
	out := make([]any, len(positions))
	for i, pos := range positions {
		out[i] = row[pos]
	}
	return out
}
