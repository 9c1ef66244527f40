package dialect

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/parser"
)

// openWidgetsDB builds a real, in-memory SQLite database backing a
// two-column widgets table, plus the matching catalog.DbSchema, so the
// two-phase write path (Capture, Mutate, RepresentBuilder) can be run
// against a live driver rather than asserted on SQL text alone.
func openWidgetsDB(t *testing.T) (*sql.DB, *catalog.DbSchema) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("creating widgets: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO widgets (id, name) VALUES (1, 'gear'), (2, 'bolt')`); err != nil {
		t.Fatalf("seeding widgets: %v", err)
	}

	schema := catalog.NewDbSchema()
	s := schema.AddSchema("main")
	if _, err := s.AddObject(catalog.Object{
		Schema: "main", Name: "widgets", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "name", DataType: "text"},
		},
	}); err != nil {
		t.Fatalf("adding widgets: %v", err)
	}
	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return db, schema
}

type envelopeRow struct {
	pageTotal int64
	total     sql.NullInt64
	body      []byte
	status    int64
}

func scanEnvelope(t *testing.T, row *sql.Row) envelopeRow {
	t.Helper()
	var out envelopeRow
	var headersJSON string
	if err := row.Scan(&out.pageTotal, &out.total, &out.body, &headersJSON, &out.status); err != nil {
		t.Fatalf("scanning envelope row: %v", err)
	}
	return out
}

// TestSQLiteTwoPhaseUpdateRepresentation drives a PATCH through
// FormatWrite's Capture/Mutate/RepresentBuilder sequence against a real
// database and checks the updated row comes back in the representation.
func TestSQLiteTwoPhaseUpdateRepresentation(t *testing.T) {
	db, schema := openWidgetsDB(t)
	ctx := context.Background()

	req, perr := parser.ParseRequest(schema, parser.RawRequest{
		Method: "PATCH",
		Path:   "/widgets",
		Query:  []parser.QueryPair{{Name: "id", Value: "eq.1"}},
		Body:   `{"name":"sprocket"}`,
		Headers: map[string]string{
			"prefer": "return=representation",
		},
	})
	if perr != nil {
		t.Fatalf("ParseRequest: %v", perr)
	}

	plan, ferr := FormatWrite(schema, SQLite{}, req, nil)
	if ferr != nil {
		t.Fatalf("FormatWrite: %v", ferr)
	}
	if plan.Capture.SQL == "" {
		t.Fatal("expected a capture statement for a single-pk UPDATE")
	}

	rows, err := db.QueryContext(ctx, plan.Capture.SQL, plan.Capture.Params...)
	if err != nil {
		t.Fatalf("running capture: %v", err)
	}
	var pkValues []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scanning captured pk: %v", err)
		}
		pkValues = append(pkValues, id)
	}
	rows.Close()
	if len(pkValues) != 1 || pkValues[0] != int64(1) {
		t.Fatalf("expected to capture pk [1], got %+v", pkValues)
	}

	if _, err := db.ExecContext(ctx, plan.Mutate.SQL, plan.Mutate.Params...); err != nil {
		t.Fatalf("running mutate: %v", err)
	}

	reprResult, rerr := plan.RepresentBuilder(pkValues)
	if rerr != nil {
		t.Fatalf("RepresentBuilder: %v", rerr)
	}
	row := db.QueryRowContext(ctx, reprResult.SQL, reprResult.Params...)
	env := scanEnvelope(t, row)

	var decoded []map[string]any
	if err := json.Unmarshal(env.body, &decoded); err != nil {
		t.Fatalf("decoding body %s: %v", env.body, err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 row in representation, got %+v", decoded)
	}
	if decoded[0]["name"] != "sprocket" {
		t.Fatalf("expected updated name %q, got %+v", "sprocket", decoded[0])
	}

	var nameAfter string
	if err := db.QueryRowContext(ctx, "SELECT name FROM widgets WHERE id = 1").Scan(&nameAfter); err != nil {
		t.Fatalf("reading back widgets row: %v", err)
	}
	if nameAfter != "sprocket" {
		t.Fatalf("expected the row to actually be updated in the database, got %q", nameAfter)
	}
}

// TestSQLiteTwoPhaseDeleteRepresentationPrecedesMutation checks the DELETE
// ordering FormatWrite documents: representation is captured before Mutate
// runs, since a deleted row cannot be re-selected afterward, and the row is
// actually gone once Mutate executes.
func TestSQLiteTwoPhaseDeleteRepresentationPrecedesMutation(t *testing.T) {
	db, schema := openWidgetsDB(t)
	ctx := context.Background()

	req, perr := parser.ParseRequest(schema, parser.RawRequest{
		Method: "DELETE",
		Path:   "/widgets",
		Query:  []parser.QueryPair{{Name: "id", Value: "eq.2"}},
		Headers: map[string]string{
			"prefer": "return=representation",
		},
	})
	if perr != nil {
		t.Fatalf("ParseRequest: %v", perr)
	}

	plan, ferr := FormatWrite(schema, SQLite{}, req, nil)
	if ferr != nil {
		t.Fatalf("FormatWrite: %v", ferr)
	}
	if plan.Kind != ir.KindDelete {
		t.Fatalf("expected plan.Kind to be the delete kind")
	}
	if plan.RepresentBuilder == nil {
		t.Fatal("expected a RepresentBuilder for return=representation")
	}

	preRepr, rerr := plan.RepresentBuilder(nil)
	if rerr != nil {
		t.Fatalf("RepresentBuilder: %v", rerr)
	}
	row := db.QueryRowContext(ctx, preRepr.SQL, preRepr.Params...)
	env := scanEnvelope(t, row)

	var decoded []map[string]any
	if err := json.Unmarshal(env.body, &decoded); err != nil {
		t.Fatalf("decoding body %s: %v", env.body, err)
	}
	if len(decoded) != 1 || decoded[0]["name"] != "bolt" {
		t.Fatalf("expected the pre-delete row to be captured, got %+v", decoded)
	}

	if _, err := db.ExecContext(ctx, plan.Mutate.SQL, plan.Mutate.Params...); err != nil {
		t.Fatalf("running mutate: %v", err)
	}

	var remaining int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM widgets WHERE id = 2").Scan(&remaining); err != nil {
		t.Fatalf("counting remaining rows: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected the row to be deleted, found %d remaining", remaining)
	}
}
