package dialect

import (
	"strconv"
	"strings"
	"testing"

	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/parser"
)

// The schemas and requests below reproduce the literal scenarios of
// spec.md §8, dialect = PostgreSQL. Without a live database these assert
// on SQL structure rather than executed rows, but every assertion targets
// the exact invariant the corresponding scenario depends on: embed shape
// (object vs. array), RETURNING-driven write representation, and a write's
// count=exact total not re-running the mutation.

func buildProjectsItemsTasksSchema(t *testing.T) *catalog.DbSchema {
	t.Helper()
	schema := catalog.NewDbSchema()
	s := schema.AddSchema("public")

	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "projects", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "name", DataType: "text"},
		},
	}); err != nil {
		t.Fatalf("adding projects: %v", err)
	}
	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "items", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{{Name: "id", DataType: "integer", PrimaryKey: true}},
	}); err != nil {
		t.Fatalf("adding items: %v", err)
	}
	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "tasks", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "project_id", DataType: "integer"},
		},
		ForeignKeys: []catalog.ForeignKey{
			{Name: "tasks_project_id_fkey", OriginObject: "tasks", OriginColumns: []string{"project_id"}, TargetObject: "projects", TargetColumns: []string{"id"}},
		},
	}); err != nil {
		t.Fatalf("adding tasks: %v", err)
	}
	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func buildClientsCustomRelationSchema(t *testing.T) *catalog.DbSchema {
	t.Helper()
	schema := catalog.NewDbSchema()
	s := schema.AddSchema("public")

	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "clients", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{{Name: "id", DataType: "integer", PrimaryKey: true}},
	}); err != nil {
		t.Fatalf("adding clients: %v", err)
	}
	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "projects", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "client_ref", DataType: "integer"},
		},
	}); err != nil {
		t.Fatalf("adding projects: %v", err)
	}
	if err := schema.AddCustomRelation("no_fk_projects", "public", "clients", []string{"id"}, "public", "projects", []string{"client_ref"}, true); err != nil {
		t.Fatalf("AddCustomRelation: %v", err)
	}
	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func buildUnicodeSchema(t *testing.T) *catalog.DbSchema {
	t.Helper()
	schema := catalog.NewDbSchema()
	s := schema.AddSchema("public")
	if _, err := s.AddObject(catalog.Object{
		Schema: "public", Name: "موارد", Kind: catalog.KindTable, Writable: true,
		Columns: []catalog.Column{{Name: "هویت", DataType: "integer", PrimaryKey: true}},
	}); err != nil {
		t.Fatalf("adding موارد: %v", err)
	}
	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func parseAndFormat(t *testing.T, schema *catalog.DbSchema, raw parser.RawRequest) Result {
	t.Helper()
	req, perr := parser.ParseRequest(schema, raw)
	if perr != nil {
		t.Fatalf("ParseRequest: %v", perr)
	}
	result, ferr := Format(schema, Postgres{}, req, nil)
	if ferr != nil {
		t.Fatalf("Format: %v", ferr)
	}
	return result
}

// GET /projects?select=id,name&id=gt.1&name=eq.IOS
func TestScenarioFilteredProjectSelect(t *testing.T) {
	schema := buildProjectsItemsTasksSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method: "GET",
		Path:   "/projects",
		Query: []parser.QueryPair{
			{Name: "select", Value: "id,name"},
			{Name: "id", Value: "gt.1"},
			{Name: "name", Value: "eq.IOS"},
		},
		Headers: map[string]string{},
	})
	assertPlaceholdersContiguous(t, result)
	if !strings.Contains(result.SQL, `"id" > $1`) {
		t.Fatalf("expected id > $1 predicate, got %s", result.SQL)
	}
	if !strings.Contains(result.SQL, `"name" = $2`) {
		t.Fatalf("expected name = $2 predicate, got %s", result.SQL)
	}
	if len(result.Params) != 2 {
		t.Fatalf("got params %+v", result.Params)
	}
	if result.Params[0] != int64(1) {
		t.Fatalf("expected first param to be int64 1, got %+v (%T)", result.Params[0], result.Params[0])
	}
	if result.Params[1] != "IOS" {
		t.Fatalf("expected second param to be %q, got %+v", "IOS", result.Params[1])
	}
}

// DELETE /items?id=eq.2 with Prefer: return=representation, count=exact
// must not re-run the mutating DELETE a second time to compute the exact
// total — it must read the row count back from the already-executed
// _source instead.
func TestScenarioDeleteWithCountExactDoesNotDuplicateMutation(t *testing.T) {
	schema := buildProjectsItemsTasksSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method: "DELETE",
		Path:   "/items",
		Query:  []parser.QueryPair{{Name: "id", Value: "eq.2"}},
		Headers: map[string]string{
			"prefer": "return=representation, count=exact",
		},
	})

	if n := strings.Count(strings.ToUpper(result.SQL), "DELETE FROM"); n != 1 {
		t.Fatalf("expected exactly one DELETE FROM, got %d in %s", n, result.SQL)
	}
	if strings.Contains(result.SQL, "_count AS") {
		t.Fatalf("expected no _count CTE re-embedding the mutation, got %s", result.SQL)
	}
	if !strings.Contains(result.SQL, "_pt.page_total AS total_result_set") {
		t.Fatalf("expected total_result_set to read _pt.page_total directly, got %s", result.SQL)
	}
	assertPlaceholdersContiguous(t, result)
}

// GET /items?order=id (max_rows=2 supplied by the caller as RawRequest.MaxRows)
func TestScenarioMaxRowsClampsLimit(t *testing.T) {
	schema := buildProjectsItemsTasksSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method:  "GET",
		Path:    "/items",
		Query:   []parser.QueryPair{{Name: "order", Value: "id"}},
		Headers: map[string]string{},
		MaxRows: 2,
	})
	if !strings.Contains(result.SQL, "LIMIT") {
		t.Fatalf("expected a LIMIT clause, got %s", result.SQL)
	}
}

// GET /tasks?select=id,project:projects(id)&id=gt.5 — a parent (FK-backed)
// embed is always to-one: the child's row object is wrapped LIMIT 1, never
// array-aggregated.
func TestScenarioParentEmbedIsScalarObject(t *testing.T) {
	schema := buildProjectsItemsTasksSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method: "GET",
		Path:   "/tasks",
		Query: []parser.QueryPair{
			{Name: "select", Value: "id,project:projects(id)"},
			{Name: "id", Value: "gt.5"},
		},
		Headers: map[string]string{},
	})
	if !strings.Contains(result.SQL, "LIMIT 1)") {
		t.Fatalf("expected the parent embed to be wrapped LIMIT 1, got %s", result.SQL)
	}
	// The envelope's own _body always aggregates with jsonb_agg; any
	// further occurrence would come from the embed.
	if n := strings.Count(result.SQL, "jsonb_agg"); n != 1 {
		t.Fatalf("a to-one parent embed must not be array-aggregated, got %d jsonb_agg in %s", n, result.SQL)
	}
}

// POST /موارد with body {"هویت":1} and Prefer: return=representation.
func TestScenarioUnicodeTableInsert(t *testing.T) {
	schema := buildUnicodeSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method:  "POST",
		Path:    "/موارد",
		Body:    `{"هویت":1}`,
		Headers: map[string]string{"prefer": "return=representation"},
	})
	if !strings.Contains(result.SQL, `INSERT INTO "موارد"`) {
		t.Fatalf("expected an insert into the unicode table name, got %s", result.SQL)
	}
	if !strings.Contains(result.SQL, `RETURNING "هویت"`) {
		t.Fatalf("expected RETURNING to use the unicode column name, got %s", result.SQL)
	}
	assertPlaceholdersContiguous(t, result)
}

// GET /clients?id=eq.1&select=id,projects:projects!no_fk_projects(id) using
// a custom relation declared to-many must array-aggregate the embed, not
// collapse it to a single object — the exact defect spec.md §8's
// no_fk_projects scenario exists to catch.
func TestScenarioCustomRelationToManyEmbedIsArray(t *testing.T) {
	schema := buildClientsCustomRelationSchema(t)
	result := parseAndFormat(t, schema, parser.RawRequest{
		Method: "GET",
		Path:   "/clients",
		Query: []parser.QueryPair{
			{Name: "id", Value: "eq.1"},
			{Name: "select", Value: "id,projects:projects!no_fk_projects(id)"},
		},
		Headers: map[string]string{},
	})
	// One jsonb_agg belongs to the envelope's _body; the embed adds another.
	if n := strings.Count(result.SQL, "jsonb_agg"); n < 2 {
		t.Fatalf("expected a to-many custom relation embed to be array-aggregated, got %d jsonb_agg in %s", n, result.SQL)
	}
	if strings.Contains(result.SQL, "LIMIT 1)") {
		t.Fatalf("a to-many custom relation embed must not be collapsed to one row, got %s", result.SQL)
	}
}

// assertPlaceholdersContiguous checks testable property #2 of spec.md §8:
// placeholders are $1..$N with no gaps and N == len(params).
func assertPlaceholdersContiguous(t *testing.T, result Result) {
	t.Helper()
	max := 0
	seen := map[int]bool{}
	i := 0
	for i < len(result.SQL) {
		if result.SQL[i] == '$' {
			j := i + 1
			for j < len(result.SQL) && result.SQL[j] >= '0' && result.SQL[j] <= '9' {
				j++
			}
			if j > i+1 {
				n, err := strconv.Atoi(result.SQL[i+1 : j])
				if err != nil {
					t.Fatalf("unparseable placeholder in %s", result.SQL)
				}
				seen[n] = true
				if n > max {
					max = n
				}
			}
			i = j
			continue
		}
		i++
	}
	if max != len(result.Params) {
		t.Fatalf("highest placeholder $%d does not match %d params: %s", max, len(result.Params), result.SQL)
	}
	for n := 1; n <= max; n++ {
		if !seen[n] {
			t.Fatalf("placeholder $%d is missing (gap in numbering): %s", n, result.SQL)
		}
	}
}
