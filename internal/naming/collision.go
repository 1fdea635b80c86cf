package naming

import (
	"fmt"
	"log/slog"
)

// memberKind records what claimed a name inside an entity.
type memberKind int

const (
	kindEntity memberKind = iota
	kindField
	kindManyToOne
	kindOneToMany
	kindManyToMany
)

func (k memberKind) String() string {
	switch k {
	case kindEntity:
		return "entity"
	case kindField:
		return "field"
	case kindManyToOne:
		return "many_to_one"
	case kindOneToMany:
		return "one_to_many"
	case kindManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// claim is the holder of a name: what kind of member it is and the schema object
// it came from.
type claim struct {
	kind   memberKind
	source string
}

// scope is one namespace of claimed names.
type scope map[string]claim

// nameScopes holds the entity namespace and one member namespace per entity.
// Fields and associations of an entity share that entity's scope.
type nameScopes struct {
	entities scope
	members  map[string]scope
	logger   *slog.Logger
}

func newNameScopes(logger *slog.Logger) *nameScopes {
	return &nameScopes{
		entities: make(scope),
		members:  make(map[string]scope),
		logger:   logger,
	}
}

func (s *nameScopes) memberScope(entity string) scope {
	members, ok := s.members[entity]
	if !ok {
		members = make(scope)
		s.members[entity] = members
	}
	return members
}

// claimEntity reserves an entity name for table.
func (s *nameScopes) claimEntity(name, table string) string {
	return s.claim(s.entities, name, claim{kind: kindEntity, source: "table:" + table})
}

// claimMember reserves name inside entity. An association whose name is already
// held first tries name+qualifier; whatever remains taken gets a numeric suffix.
func (s *nameScopes) claimMember(entity, name, qualifier string, c claim) string {
	members := s.memberScope(entity)
	if held, taken := members[name]; taken && c.kind != kindField && qualifier != "" {
		s.logger.Debug("association name taken, qualifying",
			slog.String("entity", entity),
			slog.String("name", name),
			slog.String("held_by", held.kind.String()),
			slog.String("qualified", name+qualifier),
		)
		name += qualifier
	}
	return s.claim(members, name, c)
}

func (s *nameScopes) claim(sc scope, name string, c claim) string {
	held, taken := sc[name]
	if !taken {
		sc[name] = c
		return name
	}

	resolved := name
	for i := 2; taken; i++ {
		resolved = fmt.Sprintf("%s%d", name, i)
		_, taken = sc[resolved]
	}
	sc[resolved] = c
	s.logger.Warn("name collision, applying numeric suffix",
		slog.String("name", name),
		slog.String("resolved", resolved),
		slog.String("held_by", held.kind.String()+" "+held.source),
		slog.String("claimed_by", c.kind.String()+" "+c.source),
	)
	return resolved
}
