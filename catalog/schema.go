// Package catalog models the schema catalog translate() operates over:
// databases, tables, views, columns, primary keys, foreign keys and custom
// relations, indexed for O(1) lookup by name and for relation resolution.
// Grounded on daos/schema.go and api/database/schema.go's Table/Col/Fk
// model, generalized from a single SQLite database to the multi-schema
// catalog spec.md §3 describes.
package catalog

import (
	"fmt"
	"unicode"

	"golang.org/x/exp/slices"
)

// ObjectKind distinguishes a table from a view. Views are never writable.
type ObjectKind string

const (
	KindTable ObjectKind = "table"
	KindView  ObjectKind = "view"
)

// Column describes one column of an Object.
type Column struct {
	Name       string
	DataType   string // opaque string; well-known values: integer, text, json, jsonb, ...
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey is a `(origin_object, [origin_columns], target_object,
// [target_columns])` edge. Custom == true marks a user-declared relation
// attached at schema load rather than one discovered by introspection; for
// those, ToMany records whether one origin row embeds many target rows
// (true) or at most one (false) — introspected foreign keys never set it,
// since their to-one/to-many direction is always derived from which side
// declares the FK column.
type ForeignKey struct {
	Name           string
	OriginSchema   string
	OriginObject   string
	OriginColumns  []string
	TargetSchema   string
	TargetObject   string
	TargetColumns  []string
	Custom         bool
	ToMany         bool
}

// Object is a table or view: a named collection of columns, foreign keys
// and a writability flag.
type Object struct {
	Schema      string
	Name        string
	Kind        ObjectKind
	Writable    bool
	Columns     []Column
	ForeignKeys []ForeignKey

	colIndex map[string]int // column name -> index into Columns
}

// Column looks up a column by name in O(1), reporting a miss via the ok
// bool; callers needing an *apierr.Error build one themselves (e.g.
// apierr.UnknownColumnErr).
func (o *Object) Column(name string) (Column, bool) {
	idx, ok := o.colIndex[name]
	if !ok {
		return Column{}, false
	}
	return o.Columns[idx], true
}

// PrimaryKeyColumns returns the ordered list of columns participating in
// the object's primary key.
func (o *Object) PrimaryKeyColumns() []string {
	var pk []string
	for _, c := range o.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Schema is a named collection of Objects.
type Schema struct {
	Name    string
	Objects map[string]*Object
}

// Object looks up an object by name in O(1).
func (s *Schema) Object(name string) (*Object, bool) {
	o, ok := s.Objects[name]
	return o, ok
}

// DbSchema is an ordered collection of Schema values plus the relation
// index built by Build(). It is immutable and safe for concurrent reads
// once Build() has returned (§5): callers publishing a reloaded schema
// must swap the *DbSchema reference atomically rather than mutate one in
// place.
type DbSchema struct {
	Schemas []*Schema

	schemaIndex map[string]*Schema
	relations   *relationIndex
}

// NewDbSchema constructs an empty, buildable schema.
func NewDbSchema() *DbSchema {
	return &DbSchema{schemaIndex: map[string]*Schema{}}
}

// AddSchema registers a schema (overwriting any existing one of the same
// name) and returns it for further population.
func (d *DbSchema) AddSchema(name string) *Schema {
	s := &Schema{Name: name, Objects: map[string]*Object{}}
	d.schemaIndex[name] = s
	d.Schemas = append(d.Schemas, s)
	return s
}

// AddObject registers an Object within the named schema, indexing its
// columns for O(1) lookup. Invariant (ii) of spec.md §3 — equal positive
// length column arrays on every foreign key — is validated eagerly.
func (s *Schema) AddObject(obj Object) (*Object, error) {
	obj.colIndex = make(map[string]int, len(obj.Columns))
	for i, c := range obj.Columns {
		obj.colIndex[c.Name] = i
	}
	for _, fk := range obj.ForeignKeys {
		if len(fk.OriginColumns) == 0 || len(fk.OriginColumns) != len(fk.TargetColumns) {
			return nil, fmt.Errorf("foreign key %q: origin/target column counts must be equal and positive", fk.Name)
		}
	}
	ptr := &obj
	s.Objects[obj.Name] = ptr
	return ptr, nil
}

// Schema looks up a schema by name in O(1).
func (d *DbSchema) Schema(name string) (*Schema, bool) {
	s, ok := d.schemaIndex[name]
	return s, ok
}

// Object resolves an object by name within the given schema, or across all
// schemas when schemaName is empty (the common case for a request that
// only names a table, not a schema-qualified one).
func (d *DbSchema) Object(schemaName, name string) (*Object, bool) {
	if schemaName != "" {
		s, ok := d.schemaIndex[schemaName]
		if !ok {
			return nil, false
		}
		return s.Object(name)
	}
	for _, s := range d.Schemas {
		if o, ok := s.Object(name); ok {
			return o, true
		}
	}
	return nil, false
}

// Build finalizes the schema: validates invariant (i) — every foreign
// key's target_object resolves within the same or a referenced schema —
// and constructs the relation index consumed by ResolveRelation. Build
// must be called once after all schemas/objects/custom relations have
// been added and before the schema is used by translate().
func (d *DbSchema) Build() error {
	for _, s := range d.Schemas {
		for _, obj := range s.Objects {
			for _, fk := range obj.ForeignKeys {
				targetSchema := fk.TargetSchema
				if targetSchema == "" {
					targetSchema = s.Name
				}
				ts, ok := d.schemaIndex[targetSchema]
				if !ok {
					return fmt.Errorf("foreign key %q on %s.%s references unknown schema %q", fk.Name, s.Name, obj.Name, targetSchema)
				}
				if _, ok := ts.Object(fk.TargetObject); !ok {
					return fmt.Errorf("foreign key %q on %s.%s references unknown object %q", fk.Name, s.Name, obj.Name, fk.TargetObject)
				}
			}
		}
	}
	d.relations = buildRelationIndex(d)
	return nil
}

// AddCustomRelation attaches a user-declared foreign-key-like edge between
// two objects that is not backed by a database foreign key, exactly the
// way the teacher's schema sync attaches introspected foreign keys — the
// only difference is the Custom flag. Build indexes it alongside the
// FK-backed edges, and ResolveRelation treats it like any other edge: if
// an FK also connects the same pair of tables, the two are ambiguous
// unless a hint names one of them.
//
// toMany declares the embed shape from originObject's point of view: true
// means one originObject row embeds an array of targetObject rows (e.g. a
// client embedding every project it owns even without an FK), false means
// at most one (a to-one lookup with no FK to back it).
func (d *DbSchema) AddCustomRelation(name, originSchema, originObject string, originColumns []string, targetSchema, targetObject string, targetColumns []string, toMany bool) error {
	os, ok := d.schemaIndex[originSchema]
	if !ok {
		return fmt.Errorf("unknown schema %q for custom relation %q", originSchema, name)
	}
	obj, ok := os.Object(originObject)
	if !ok {
		return fmt.Errorf("unknown object %q for custom relation %q", originObject, name)
	}
	if len(originColumns) == 0 || len(originColumns) != len(targetColumns) {
		return fmt.Errorf("custom relation %q: origin/target column counts must be equal and positive", name)
	}
	obj.ForeignKeys = append(obj.ForeignKeys, ForeignKey{
		Name:          name,
		OriginSchema:  originSchema,
		OriginObject:  originObject,
		OriginColumns: originColumns,
		TargetSchema:  targetSchema,
		TargetObject:  targetObject,
		TargetColumns: targetColumns,
		Custom:        true,
		ToMany:        toMany,
	})
	return nil
}

// ValidateIdentifier validates a table, view, column or schema name, the
// way api/database/errors.go's ValidateIdentifier does, generalized to
// accept any Unicode letter so non-ASCII identifiers (spec.md §8's
// موارد/هویت scenario) are not rejected.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	for i, r := range name {
		switch {
		case i == 0 && !unicode.IsLetter(r) && r != '_':
			return fmt.Errorf("identifier %q must start with a letter or underscore", name)
		case i > 0 && !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_':
			return fmt.Errorf("identifier %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// sortedObjectNames returns the Object names of a Schema in deterministic
// order, used only where a stable iteration order matters (e.g. error
// messages, introspection round-trips); request-driven SQL ordering always
// follows query-string order per §5, never catalog order.
func (s *Schema) sortedObjectNames() []string {
	names := make([]string, 0, len(s.Objects))
	for n := range s.Objects {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
