package planner

import (
	"strings"

	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
	"repoquery/internal/repoerr"
)

// joinTableSuffix names the join table alias of a many-to-many join: <alias>__jt.
const joinTableSuffix = "__jt"

func (p *Planner) resolveRelations(plan *Plan, relations []descriptor.Relation) error {
	for _, rel := range relations {
		join, err := p.resolveRelation(plan, rel)
		if err != nil {
			return err
		}
		plan.Joins = append(plan.Joins, join)

		columns, err := projectColumns(join.Entity, join.Alias, join.Fields, join.IndexBy, true)
		if err != nil {
			return err
		}
		plan.Columns = append(plan.Columns, columns...)
	}
	return nil
}

// resolveRelation resolves "<assoc>" or "<alias>.<assoc>" to a join.
func (p *Planner) resolveRelation(plan *Plan, rel descriptor.Relation) (*Join, error) {
	name := strings.TrimSpace(rel.Name)
	parentAlias, assocName := plan.RootAlias, name
	if idx := strings.LastIndex(name, "."); idx != -1 {
		parentAlias, assocName = name[:idx], name[idx+1:]
	}
	if assocName == "" {
		return nil, repoerr.InvalidArgument("invalid relation %q", rel.Name)
	}

	alias := rel.Options.JoinAlias
	if alias == "" {
		alias = assocName
	}
	if alias == plan.RootAlias {
		return nil, repoerr.InvalidArgument("join alias %q collides with the root alias", alias)
	}
	if _, exists := plan.Join(alias); exists {
		return nil, repoerr.InvalidArgument("join alias %q is already in use", alias)
	}

	parent, ok := plan.entityForAlias(parentAlias)
	if !ok {
		return nil, repoerr.UnknownAlias(parentAlias)
	}
	assoc, ok := parent.Association(assocName)
	if !ok {
		return nil, repoerr.UnknownAssociation(parent.Name, assocName)
	}
	target, err := p.meta.AssociationTarget(parent.Name, assocName)
	if err != nil {
		return nil, err
	}

	if rel.Options.IndexBy != "" && !target.HasField(rel.Options.IndexBy) {
		return nil, repoerr.UnknownField(target.Name, rel.Options.IndexBy)
	}

	join := &Join{
		Alias:       alias,
		ParentAlias: parentAlias,
		Association: assoc,
		Entity:      target,
		Type:        rel.Options.JoinType,
		IndexBy:     rel.Options.IndexBy,
		Fields:      rel.Options.Fields,
	}
	join.clauses = plan.joinClauses(join, rel.Options)
	return join, nil
}

// joinClauses renders the ON conditions of a join. A WITH condition is AND-ed to the
// association keys; an ON condition replaces them on the target table.
func (p *Plan) joinClauses(j *Join, opts descriptor.RelationOptions) []joinClause {
	var clauses []joinClause
	targetLeftAlias, targetLeftColumns := j.ParentAlias, j.Association.LocalColumns

	if j.Association.Kind == metadata.ManyToMany {
		jtAlias := j.Alias + joinTableSuffix
		clauses = append(clauses, joinClause{
			table: j.Association.JoinTable,
			alias: jtAlias,
			on:    p.joinKeyCondition(j.ParentAlias, j.Association.LocalColumns, jtAlias, j.Association.JoinTableLocalColumns),
		})
		targetLeftAlias, targetLeftColumns = jtAlias, j.Association.JoinTableRemoteColumns
	}

	on := p.joinKeyCondition(targetLeftAlias, targetLeftColumns, j.Alias, j.Association.RemoteColumns)
	var args []any
	if cond := strings.TrimSpace(opts.JoinCondition); cond != "" {
		args = opts.JoinConditionArgs
		if opts.JoinConditionType == descriptor.ConditionOn {
			on = cond
		} else {
			on = on + " AND (" + cond + ")"
		}
	}

	return append(clauses, joinClause{
		table: j.Entity.Table,
		alias: j.Alias,
		on:    on,
		args:  args,
	})
}
