package metadata

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"repoquery/internal/sqltype"
)

// Manifest is the YAML form of a set of entity mappings.
type Manifest struct {
	Namespace string           `yaml:"namespace"`
	Entities  []EntityManifest `yaml:"entities"`
}

// EntityManifest describes one entity in a manifest.
type EntityManifest struct {
	Name         string                `yaml:"name"`
	Table        string                `yaml:"table"`
	RootEntity   string                `yaml:"root_entity,omitempty"`
	Identifier   []string              `yaml:"identifier"`
	Fields       []FieldManifest       `yaml:"fields"`
	Associations []AssociationManifest `yaml:"associations,omitempty"`
}

// FieldManifest describes one field in a manifest.
type FieldManifest struct {
	Name     string `yaml:"name"`
	Column   string `yaml:"column,omitempty"`
	Type     string `yaml:"type"`
	DataType string `yaml:"data_type,omitempty"`
}

// AssociationManifest describes one association in a manifest.
type AssociationManifest struct {
	Name                   string   `yaml:"name"`
	Target                 string   `yaml:"target"`
	Kind                   string   `yaml:"kind"`
	Local                  []string `yaml:"local"`
	Remote                 []string `yaml:"remote"`
	JoinTable              string   `yaml:"join_table,omitempty"`
	JoinTableLocalColumns  []string `yaml:"join_local,omitempty"`
	JoinTableRemoteColumns []string `yaml:"join_remote,omitempty"`
}

// LoadManifest decodes a YAML manifest into entities ready for Registry.Register.
// Entity and target names without a namespace separator are qualified with the
// manifest namespace.
func LoadManifest(r io.Reader) ([]Entity, error) {
	var manifest Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode metadata manifest: %w", err)
	}
	return manifest.ToEntities()
}

// ToEntities converts the manifest into entity metadata.
func (m Manifest) ToEntities() ([]Entity, error) {
	entities := make([]Entity, 0, len(m.Entities))
	for _, em := range m.Entities {
		entity := Entity{
			Name:       m.qualify(em.Name),
			Namespace:  m.Namespace,
			Table:      em.Table,
			Identifier: append([]string(nil), em.Identifier...),
		}
		if em.RootEntity != "" {
			entity.RootEntityName = m.qualify(em.RootEntity)
		}
		for _, fm := range em.Fields {
			kind, err := sqltype.ParseKind(fm.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %s field %s: %w", entity.Name, fm.Name, err)
			}
			if fm.Type == "" && fm.DataType != "" {
				kind = sqltype.FromDataType(fm.DataType)
			}
			entity.Fields = append(entity.Fields, Field{
				Name:     fm.Name,
				Column:   fm.Column,
				DataType: fm.DataType,
				Kind:     kind,
			})
		}
		for _, am := range em.Associations {
			kind, err := parseAssociationKind(am.Kind)
			if err != nil {
				return nil, fmt.Errorf("entity %s association %s: %w", entity.Name, am.Name, err)
			}
			entity.Associations = append(entity.Associations, Association{
				Name:                   am.Name,
				TargetEntity:           m.qualify(am.Target),
				Kind:                   kind,
				LocalColumns:           am.Local,
				RemoteColumns:          am.Remote,
				JoinTable:              am.JoinTable,
				JoinTableLocalColumns:  am.JoinTableLocalColumns,
				JoinTableRemoteColumns: am.JoinTableRemoteColumns,
			})
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (m Manifest) qualify(name string) string {
	if m.Namespace == "" || strings.ContainsAny(name, `.\`) {
		return name
	}
	return m.Namespace + "." + name
}

func parseAssociationKind(kind string) (AssociationKind, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "many_to_one", "manytoone":
		return ManyToOne, nil
	case "one_to_many", "onetomany":
		return OneToMany, nil
	case "many_to_many", "manytomany":
		return ManyToMany, nil
	default:
		return ManyToOne, fmt.Errorf("unknown association kind %q", kind)
	}
}

// NewManifest converts entities back to manifest form. Names inside namespace are
// written unqualified.
func NewManifest(namespace string, entities []Entity) Manifest {
	m := Manifest{Namespace: namespace, Entities: make([]EntityManifest, 0, len(entities))}
	for _, e := range entities {
		em := EntityManifest{
			Name:       unqualify(e.Name, namespace),
			Table:      e.Table,
			Identifier: append([]string(nil), e.Identifier...),
		}
		if e.RootEntityName != "" && e.RootEntityName != e.Name {
			em.RootEntity = unqualify(e.RootEntityName, namespace)
		}
		for _, f := range e.Fields {
			fm := FieldManifest{Name: f.Name, Type: f.Kind.String(), DataType: f.DataType}
			if f.Column != "" && f.Column != f.Name {
				fm.Column = f.Column
			}
			em.Fields = append(em.Fields, fm)
		}
		for _, a := range e.Associations {
			em.Associations = append(em.Associations, AssociationManifest{
				Name:                   a.Name,
				Target:                 unqualify(a.TargetEntity, namespace),
				Kind:                   a.Kind.String(),
				Local:                  a.LocalColumns,
				Remote:                 a.RemoteColumns,
				JoinTable:              a.JoinTable,
				JoinTableLocalColumns:  a.JoinTableLocalColumns,
				JoinTableRemoteColumns: a.JoinTableRemoteColumns,
			})
		}
		m.Entities = append(m.Entities, em)
	}
	return m
}

func unqualify(name, namespace string) string {
	if namespace != "" && strings.HasPrefix(name, namespace+".") {
		return name[len(namespace)+1:]
	}
	return name
}

// WriteManifest encodes entities as a YAML manifest.
func WriteManifest(w io.Writer, namespace string, entities []Entity) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewManifest(namespace, entities)); err != nil {
		return fmt.Errorf("failed to encode metadata manifest: %w", err)
	}
	return enc.Close()
}
