package introspection

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atomicbase/restsql/catalog"
)

const sqliteTestSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE TABLE post_tags (
	post_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	PRIMARY KEY(post_id, tag_id),
	FOREIGN KEY(post_id) REFERENCES posts(id),
	FOREIGN KEY(tag_id) REFERENCES users(id)
);
CREATE VIEW post_titles AS SELECT id, title FROM posts;
`

func setupIntrospectionDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	path := name + ".db"
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(path)
	})
	if _, err := db.Exec(sqliteTestSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func TestLoadSQLiteDiscoversTablesAndViews(t *testing.T) {
	db := setupIntrospectionDB(t, "introspect_tables")
	schema, err := LoadSQLite(context.Background(), db, "")
	if err != nil {
		t.Fatalf("LoadSQLite: %v", err)
	}

	s, ok := schema.Schema("main")
	if !ok {
		t.Fatal("expected default schema \"main\"")
	}

	for _, name := range []string{"users", "posts", "post_tags"} {
		obj, ok := s.Object(name)
		if !ok {
			t.Fatalf("expected object %q", name)
		}
		if obj.Kind != catalog.KindTable {
			t.Errorf("%s: expected KindTable, got %v", name, obj.Kind)
		}
		if !obj.Writable {
			t.Errorf("%s: expected table to be writable", name)
		}
	}

	view, ok := s.Object("post_titles")
	if !ok {
		t.Fatal("expected view post_titles")
	}
	if view.Kind != catalog.KindView {
		t.Errorf("post_titles: expected KindView, got %v", view.Kind)
	}
	if view.Writable {
		t.Error("post_titles: view should not be writable")
	}
}

func TestLoadSQLiteColumnShape(t *testing.T) {
	db := setupIntrospectionDB(t, "introspect_cols")
	schema, err := LoadSQLite(context.Background(), db, "")
	if err != nil {
		t.Fatalf("LoadSQLite: %v", err)
	}

	users, ok := schema.Object("main", "users")
	if !ok {
		t.Fatal("expected users object")
	}

	id, ok := users.Column("id")
	if !ok || !id.PrimaryKey {
		t.Fatal("expected id to be a primary key column")
	}

	email, ok := users.Column("email")
	if !ok {
		t.Fatal("expected email column")
	}
	if email.Nullable {
		t.Error("expected email to be NOT NULL")
	}

	name, ok := users.Column("name")
	if !ok {
		t.Fatal("expected name column")
	}
	if !name.Nullable {
		t.Error("expected name to be nullable")
	}
}

func TestLoadSQLiteForeignKeys(t *testing.T) {
	db := setupIntrospectionDB(t, "introspect_fks")
	schema, err := LoadSQLite(context.Background(), db, "")
	if err != nil {
		t.Fatalf("LoadSQLite: %v", err)
	}

	posts, ok := schema.Object("main", "posts")
	if !ok {
		t.Fatal("expected posts object")
	}
	if len(posts.ForeignKeys) != 1 {
		t.Fatalf("expected 1 FK on posts, got %d", len(posts.ForeignKeys))
	}
	if posts.ForeignKeys[0].TargetObject != "users" {
		t.Errorf("expected posts FK to target users, got %q", posts.ForeignKeys[0].TargetObject)
	}
}

func TestLoadSQLiteCompositeForeignKeyMerged(t *testing.T) {
	db := setupIntrospectionDB(t, "introspect_composite")
	_, err := db.Exec(`
		CREATE TABLE parents (a INTEGER, b INTEGER, PRIMARY KEY (a, b));
		CREATE TABLE children (
			x INTEGER, y INTEGER,
			FOREIGN KEY (x, y) REFERENCES parents(a, b)
		);
	`)
	if err != nil {
		t.Fatalf("creating composite schema: %v", err)
	}

	schema, err := LoadSQLite(context.Background(), db, "")
	if err != nil {
		t.Fatalf("LoadSQLite: %v", err)
	}

	children, ok := schema.Object("main", "children")
	if !ok {
		t.Fatal("expected children object")
	}
	if len(children.ForeignKeys) != 1 {
		t.Fatalf("expected a single composite FK, got %d", len(children.ForeignKeys))
	}
	fk := children.ForeignKeys[0]
	if len(fk.OriginColumns) != 2 || len(fk.TargetColumns) != 2 {
		t.Fatalf("expected 2-column composite FK, got origin=%v target=%v", fk.OriginColumns, fk.TargetColumns)
	}
}

func TestLoadSQLiteBuildResolvesRelations(t *testing.T) {
	db := setupIntrospectionDB(t, "introspect_build")
	schema, err := LoadSQLite(context.Background(), db, "")
	if err != nil {
		t.Fatalf("LoadSQLite already calls Build; unexpected error: %v", err)
	}
	if schema == nil {
		t.Fatal("expected non-nil schema")
	}
	rel, rerr := schema.ResolveRelation("posts", "users", "")
	if rerr != nil {
		t.Fatalf("ResolveRelation(posts, users): %v", rerr)
	}
	if rel.Cardinality != catalog.CardinalityParent {
		t.Fatalf("expected posts -> users to resolve as a parent relation, got %v", rel.Cardinality)
	}
}
