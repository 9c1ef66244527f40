// Package introspection decodes the JSON document produced by a database's
// information-schema queries into a *catalog.DbSchema. It is the only place
// in the module that knows the on-wire introspection shape; everything
// downstream works against catalog types. Grounded on daos/base.go's schema
// sync, which reads sqlite_master/PRAGMA output into the same in-memory
// Table/Col/Fk shape this package builds, generalized from a single SQLite
// file to the multi-schema, multi-object JSON document described by the
// introspection input shape.
package introspection

import (
	"encoding/json"
	"fmt"

	"github.com/atomicbase/restsql/catalog"
)

type schemaDoc struct {
	Schemas         []objectSchemaDoc    `json:"schemas"`
	CustomRelations []customRelationDoc `json:"custom_relations,omitempty"`
}

// customRelationDoc declares an embed edge that has no backing foreign key —
// e.g. PostgREST-style hinted relations configured out of band. ToMany picks
// between a to-one and a to-many embed from OriginObject's point of view.
type customRelationDoc struct {
	Name          string       `json:"name"`
	OriginSchema  string       `json:"origin_schema"`
	OriginObject  string       `json:"origin_object"`
	OriginColumns []string     `json:"origin_columns"`
	TargetSchema  string       `json:"target_schema"`
	TargetObject  string       `json:"target_object"`
	TargetColumns []string     `json:"target_columns"`
	ToMany        bool         `json:"to_many"`
}

type objectSchemaDoc struct {
	Name    string      `json:"name"`
	Objects []objectDoc `json:"objects"`
}

type objectDoc struct {
	Kind        string        `json:"kind"`
	Name        string        `json:"name"`
	Writable    *bool         `json:"writable,omitempty"`
	Columns     []columnDoc   `json:"columns"`
	ForeignKeys []foreignKeyDoc `json:"foreign_keys"`
}

type columnDoc struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	PrimaryKey bool   `json:"primary_key"`
	Nullable   bool   `json:"nullable"`
}

type foreignKeyDoc struct {
	Name              string        `json:"name"`
	Columns           []string      `json:"columns"`
	ReferencedTable   referenceDoc  `json:"referenced_table"`
	ReferencedColumns []string      `json:"referenced_columns"`
}

type referenceDoc struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Load parses an introspection JSON document into a built, ready-to-query
// *catalog.DbSchema. It calls Build on the result, so every invariant of
// catalog.DbSchema.Build is enforced before Load returns successfully.
func Load(data []byte) (*catalog.DbSchema, error) {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("introspection: decode: %w", err)
	}

	db := catalog.NewDbSchema()
	for _, sd := range doc.Schemas {
		if err := catalog.ValidateIdentifier(sd.Name); err != nil {
			return nil, fmt.Errorf("introspection: schema: %w", err)
		}
		schema := db.AddSchema(sd.Name)
		for _, od := range sd.Objects {
			obj, err := buildObject(sd.Name, od)
			if err != nil {
				return nil, err
			}
			if _, err := schema.AddObject(obj); err != nil {
				return nil, fmt.Errorf("introspection: object %s.%s: %w", sd.Name, od.Name, err)
			}
		}
	}

	for _, rd := range doc.CustomRelations {
		targetSchema := rd.TargetSchema
		if targetSchema == "" {
			targetSchema = rd.OriginSchema
		}
		if err := db.AddCustomRelation(rd.Name, rd.OriginSchema, rd.OriginObject, rd.OriginColumns, targetSchema, rd.TargetObject, rd.TargetColumns, rd.ToMany); err != nil {
			return nil, fmt.Errorf("introspection: custom relation %q: %w", rd.Name, err)
		}
	}

	if err := db.Build(); err != nil {
		return nil, fmt.Errorf("introspection: %w", err)
	}
	return db, nil
}

func buildObject(schemaName string, od objectDoc) (catalog.Object, error) {
	if err := catalog.ValidateIdentifier(od.Name); err != nil {
		return catalog.Object{}, fmt.Errorf("introspection: %w", err)
	}

	var kind catalog.ObjectKind
	switch od.Kind {
	case "table":
		kind = catalog.KindTable
	case "view":
		kind = catalog.KindView
	default:
		return catalog.Object{}, fmt.Errorf("introspection: object %q: unknown kind %q", od.Name, od.Kind)
	}

	writable := kind == catalog.KindTable
	if od.Writable != nil {
		writable = *od.Writable
	}

	columns := make([]catalog.Column, 0, len(od.Columns))
	for _, cd := range od.Columns {
		columns = append(columns, catalog.Column{
			Name:       cd.Name,
			DataType:   cd.DataType,
			Nullable:   cd.Nullable,
			PrimaryKey: cd.PrimaryKey,
		})
	}

	fks := make([]catalog.ForeignKey, 0, len(od.ForeignKeys))
	for _, fd := range od.ForeignKeys {
		targetSchema := fd.ReferencedTable.Schema
		if targetSchema == "" {
			targetSchema = schemaName
		}
		fks = append(fks, catalog.ForeignKey{
			Name:          fd.Name,
			OriginSchema:  schemaName,
			OriginObject:  od.Name,
			OriginColumns: fd.Columns,
			TargetSchema:  targetSchema,
			TargetObject:  fd.ReferencedTable.Name,
			TargetColumns: fd.ReferencedColumns,
		})
	}

	return catalog.Object{
		Schema:      schemaName,
		Name:        od.Name,
		Kind:        kind,
		Writable:    writable,
		Columns:     columns,
		ForeignKeys: fks,
	}, nil
}
