package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/atomicbase/restsql/catalog"
)

// LoadSQLite introspects a live SQLite/libSQL connection directly into a
// built *catalog.DbSchema, the live-connection counterpart to Load's
// JSON-document path. Grounded on daos/schema.go's schemaCols/schemaFks
// PRAGMA queries, extended with notnull (the teacher's SchemaCache never
// modeled column nullability) and widened from tables-only to tables and
// views.
func LoadSQLite(ctx context.Context, db *sql.DB, schemaName string) (*catalog.DbSchema, error) {
	if schemaName == "" {
		schemaName = "main"
	}

	cols, err := sqliteColumns(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("introspection: sqlite columns: %w", err)
	}
	fks, err := sqliteForeignKeys(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("introspection: sqlite foreign keys: %w", err)
	}

	schema := catalog.NewDbSchema()
	s := schema.AddSchema(schemaName)
	for _, t := range cols {
		obj := catalog.Object{
			Schema:      schemaName,
			Name:        t.name,
			Kind:        t.kind,
			Writable:    t.kind == catalog.KindTable,
			Columns:     t.columns,
			ForeignKeys: fks[t.name],
		}
		if _, err := s.AddObject(obj); err != nil {
			return nil, fmt.Errorf("introspection: object %s: %w", t.name, err)
		}
	}

	if err := schema.Build(); err != nil {
		return nil, fmt.Errorf("introspection: %w", err)
	}
	return schema, nil
}

type sqliteTable struct {
	name    string
	kind    catalog.ObjectKind
	columns []catalog.Column
}

func sqliteColumns(ctx context.Context, db *sql.DB) ([]sqliteTable, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.name, m.type, l.name AS col, l.type AS colType, l.pk, l."notnull"
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) l
		WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name ASC, l.cid ASC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sqliteTable
	var cur *sqliteTable
	for rows.Next() {
		var name, objType, col, colType string
		var pk, notnull int
		if err := rows.Scan(&name, &objType, &col, &colType, &pk, &notnull); err != nil {
			return nil, err
		}
		if cur == nil || cur.name != name {
			kind := catalog.KindTable
			if objType == "view" {
				kind = catalog.KindView
			}
			out = append(out, sqliteTable{name: name, kind: kind})
			cur = &out[len(out)-1]
		}
		cur.columns = append(cur.columns, catalog.Column{
			Name:       col,
			DataType:   strings.ToLower(colType),
			Nullable:   notnull == 0,
			PrimaryKey: pk > 0,
		})
	}
	return out, rows.Err()
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB) (map[string][]catalog.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.name AS "table", p."table" AS "references", p."from", p."to", p.id
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) p ON m.name != p."table"
		WHERE m.type = 'table'
		ORDER BY "table" ASC, p.id ASC, p.seq ASC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTable := map[string][]catalog.ForeignKey{}
	// keyed by table+id so multi-column FKs (same pragma id, multiple seq
	// rows) fold into one ForeignKey instead of one per column.
	idx := map[string]int{}
	for rows.Next() {
		var table, references, from, to string
		var id int
		if err := rows.Scan(&table, &references, &from, &to, &id); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s#%d", table, id)
		if i, ok := idx[key]; ok {
			byTable[table][i].OriginColumns = append(byTable[table][i].OriginColumns, from)
			byTable[table][i].TargetColumns = append(byTable[table][i].TargetColumns, to)
			continue
		}
		fk := catalog.ForeignKey{
			Name:          fmt.Sprintf("%s_fk_%d", table, id),
			OriginObject:  table,
			OriginColumns: []string{from},
			TargetObject:  references,
			TargetColumns: []string{to},
		}
		byTable[table] = append(byTable[table], fk)
		idx[key] = len(byTable[table]) - 1
	}
	return byTable, rows.Err()
}
