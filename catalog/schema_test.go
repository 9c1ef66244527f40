package catalog

import "testing"

func buildTestSchema(t *testing.T) *DbSchema {
	t.Helper()
	schema := NewDbSchema()
	s := schema.AddSchema("public")

	if _, err := s.AddObject(Object{
		Schema: "public", Name: "users", Kind: KindTable, Writable: true,
		Columns: []Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "email", DataType: "text"},
		},
	}); err != nil {
		t.Fatalf("adding users: %v", err)
	}

	if _, err := s.AddObject(Object{
		Schema: "public", Name: "posts", Kind: KindTable, Writable: true,
		Columns: []Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "user_id", DataType: "integer"},
		},
		ForeignKeys: []ForeignKey{
			{Name: "posts_user_id_fkey", OriginObject: "posts", OriginColumns: []string{"user_id"}, TargetObject: "users", TargetColumns: []string{"id"}},
		},
	}); err != nil {
		t.Fatalf("adding posts: %v", err)
	}

	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func TestObjectLookupAcrossSchemas(t *testing.T) {
	schema := buildTestSchema(t)

	obj, ok := schema.Object("", "posts")
	if !ok {
		t.Fatal("expected to find posts with empty schema name")
	}
	if obj.Name != "posts" {
		t.Fatalf("got %q", obj.Name)
	}

	if _, ok := schema.Object("public", "posts"); !ok {
		t.Fatal("expected to find posts scoped to public")
	}

	if _, ok := schema.Object("other", "posts"); ok {
		t.Fatal("did not expect to find posts under an unregistered schema")
	}
}

func TestColumnLookup(t *testing.T) {
	schema := buildTestSchema(t)
	users, _ := schema.Object("public", "users")

	col, ok := users.Column("email")
	if !ok {
		t.Fatal("expected email column")
	}
	if col.DataType != "text" {
		t.Fatalf("got %q", col.DataType)
	}

	if _, ok := users.Column("nonexistent"); ok {
		t.Fatal("did not expect nonexistent column to resolve")
	}
}

func TestPrimaryKeyColumns(t *testing.T) {
	schema := buildTestSchema(t)
	users, _ := schema.Object("public", "users")
	pk := users.PrimaryKeyColumns()
	if len(pk) != 1 || pk[0] != "id" {
		t.Fatalf("got %+v", pk)
	}
}

func TestBuildRejectsForeignKeyToUnknownObject(t *testing.T) {
	schema := NewDbSchema()
	s := schema.AddSchema("public")
	if _, err := s.AddObject(Object{
		Schema: "public", Name: "posts", Kind: KindTable, Writable: true,
		Columns: []Column{{Name: "id", DataType: "integer", PrimaryKey: true}},
		ForeignKeys: []ForeignKey{
			{Name: "bad_fk", OriginObject: "posts", OriginColumns: []string{"user_id"}, TargetObject: "ghost", TargetColumns: []string{"id"}},
		},
	}); err != nil {
		t.Fatalf("adding posts: %v", err)
	}
	if err := schema.Build(); err == nil {
		t.Fatal("expected Build to reject a foreign key targeting an unknown object")
	}
}

func TestAddObjectRejectsMismatchedForeignKeyColumnCounts(t *testing.T) {
	schema := NewDbSchema()
	s := schema.AddSchema("public")
	_, err := s.AddObject(Object{
		Schema: "public", Name: "posts", Kind: KindTable, Writable: true,
		Columns: []Column{{Name: "id", DataType: "integer", PrimaryKey: true}},
		ForeignKeys: []ForeignKey{
			{Name: "bad_fk", OriginObject: "posts", OriginColumns: []string{"a", "b"}, TargetObject: "users", TargetColumns: []string{"id"}},
		},
	})
	if err == nil {
		t.Fatal("expected AddObject to reject mismatched FK column counts")
	}
}

func TestAddCustomRelation(t *testing.T) {
	schema := buildTestSchema(t)
	if err := schema.AddCustomRelation("users_favorite_post", "public", "users", []string{"id"}, "public", "posts", []string{"user_id"}, false); err != nil {
		t.Fatalf("AddCustomRelation: %v", err)
	}
	users, _ := schema.Object("public", "users")
	found := false
	for _, fk := range users.ForeignKeys {
		if fk.Name == "users_favorite_post" && fk.Custom {
			found = true
		}
	}
	if !found {
		t.Fatal("expected custom relation to be attached to users")
	}
}

func TestValidateIdentifierRejectsEmpty(t *testing.T) {
	if err := ValidateIdentifier(""); err == nil {
		t.Fatal("expected empty identifier to be rejected")
	}
}

func TestValidateIdentifierAcceptsUnicodeLetters(t *testing.T) {
	if err := ValidateIdentifier("موارد"); err != nil {
		t.Fatalf("expected unicode identifier to be accepted, got %v", err)
	}
}
