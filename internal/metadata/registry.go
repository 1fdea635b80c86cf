package metadata

import (
	"fmt"
	"sort"
	"sync"

	"repoquery/internal/repoerr"
)

// Accessor is the read side of schema metadata the planner depends on.
type Accessor interface {
	// Entity returns the metadata of the named entity.
	Entity(name string) (*Entity, error)
	// HasField reports whether the named entity maps field.
	HasField(entity, field string) bool
	// AssociationTarget follows an association of the named entity to its target entity.
	AssociationTarget(entity, association string) (*Entity, error)
}

// Registry holds registered entities. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register validates and adds entities. The batch is all or nothing: when any
// entity is invalid or its name is taken, by the registry or earlier in the batch,
// nothing is added. Association targets are resolved lazily so entities may
// reference each other in any order.
func (r *Registry) Register(entities ...Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]*Entity, len(entities))
	for i := range entities {
		e := entities[i]
		if err := validateEntity(&e); err != nil {
			return err
		}
		if _, exists := r.entities[e.Name]; exists {
			return fmt.Errorf("entity %s is already registered", e.Name)
		}
		if _, dup := batch[e.Name]; dup {
			return fmt.Errorf("entity %s appears more than once in the batch", e.Name)
		}
		if e.RootEntityName == "" {
			e.RootEntityName = e.Name
		}
		e.Alias = RootAlias(e.Name, e.Namespace)
		batch[e.Name] = &e
	}
	for name, e := range batch {
		r.entities[name] = e
	}
	return nil
}

// MustRegister is Register that panics on error. Intended for static mappings and tests.
func (r *Registry) MustRegister(entities ...Entity) *Registry {
	if err := r.Register(entities...); err != nil {
		panic(err)
	}
	return r
}

// Entity returns the metadata of the named entity.
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("entity %s is not registered", name)
	}
	return e, nil
}

// HasField reports whether the named entity maps field.
func (r *Registry) HasField(entity, field string) bool {
	e, err := r.Entity(entity)
	if err != nil {
		return false
	}
	return e.HasField(field)
}

// AssociationTarget follows an association of the named entity to its target entity.
func (r *Registry) AssociationTarget(entity, association string) (*Entity, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	assoc, ok := e.Association(association)
	if !ok {
		return nil, repoerr.UnknownAssociation(entity, association)
	}
	return r.Entity(assoc.TargetEntity)
}

// Names returns the registered entity names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateEntity(e *Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table is required", e.Name)
	}
	seen := make(map[string]struct{}, len(e.Fields)+len(e.Associations))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field name is required", e.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for _, id := range e.Identifier {
		if !e.HasField(id) {
			return fmt.Errorf("entity %s: identifier %s is not a mapped field", e.Name, id)
		}
	}
	for _, a := range e.Associations {
		if a.Name == "" || a.TargetEntity == "" {
			return fmt.Errorf("entity %s: association name and target are required", e.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("entity %s: association %s collides with another member", e.Name, a.Name)
		}
		seen[a.Name] = struct{}{}
		if len(a.LocalColumns) == 0 || len(a.LocalColumns) != len(a.RemoteColumns) {
			return fmt.Errorf("entity %s: association %s key mapping width mismatch", e.Name, a.Name)
		}
		if a.Kind == ManyToMany {
			if a.JoinTable == "" ||
				len(a.JoinTableLocalColumns) != len(a.LocalColumns) ||
				len(a.JoinTableRemoteColumns) != len(a.RemoteColumns) {
				return fmt.Errorf("entity %s: many-to-many association %s needs a join table mapping", e.Name, a.Name)
			}
		}
	}
	return nil
}
