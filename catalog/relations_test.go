package catalog

import "testing"

// buildClientsProjectsSchema mirrors spec.md §8's custom-relation scenario:
// clients and projects share no foreign key, only a custom relation named
// no_fk_projects declaring that one client embeds many projects.
func buildClientsProjectsSchema(t *testing.T, toMany bool) *DbSchema {
	t.Helper()
	schema := NewDbSchema()
	s := schema.AddSchema("public")

	if _, err := s.AddObject(Object{
		Schema: "public", Name: "clients", Kind: KindTable, Writable: true,
		Columns: []Column{{Name: "id", DataType: "integer", PrimaryKey: true}},
	}); err != nil {
		t.Fatalf("adding clients: %v", err)
	}
	if _, err := s.AddObject(Object{
		Schema: "public", Name: "projects", Kind: KindTable, Writable: true,
		Columns: []Column{
			{Name: "id", DataType: "integer", PrimaryKey: true},
			{Name: "client_ref", DataType: "integer"},
		},
	}); err != nil {
		t.Fatalf("adding projects: %v", err)
	}

	if err := schema.AddCustomRelation("no_fk_projects", "public", "clients", []string{"id"}, "public", "projects", []string{"client_ref"}, toMany); err != nil {
		t.Fatalf("AddCustomRelation: %v", err)
	}
	if err := schema.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return schema
}

func TestResolveRelationCustomToMany(t *testing.T) {
	schema := buildClientsProjectsSchema(t, true)

	rel, err := schema.ResolveRelation("clients", "projects", "")
	if err != nil {
		t.Fatalf("ResolveRelation: %v", err)
	}
	if rel.Cardinality != CardinalityCustom {
		t.Fatalf("expected CardinalityCustom, got %v", rel.Cardinality)
	}
	if !rel.ToMany {
		t.Fatal("expected a to-many custom relation to resolve ToMany=true")
	}
}

func TestResolveRelationCustomToOne(t *testing.T) {
	schema := buildClientsProjectsSchema(t, false)

	rel, err := schema.ResolveRelation("clients", "projects", "")
	if err != nil {
		t.Fatalf("ResolveRelation: %v", err)
	}
	if rel.Cardinality != CardinalityCustom {
		t.Fatalf("expected CardinalityCustom, got %v", rel.Cardinality)
	}
	if rel.ToMany {
		t.Fatal("expected a to-one custom relation to resolve ToMany=false")
	}
}

// TestResolveRelationCustomReverseInvertsToMany covers resolving the same
// declared edge from the opposite side: a client embedding many projects
// means, read backwards, that each project has at most one client.
func TestResolveRelationCustomReverseInvertsToMany(t *testing.T) {
	schema := buildClientsProjectsSchema(t, true)

	rel, err := schema.ResolveRelation("projects", "clients", "")
	if err != nil {
		t.Fatalf("ResolveRelation: %v", err)
	}
	if rel.Cardinality != CardinalityCustom {
		t.Fatalf("expected CardinalityCustom, got %v", rel.Cardinality)
	}
	if rel.ToMany {
		t.Fatal("expected the reverse direction of a to-many custom relation to resolve ToMany=false")
	}
}

func TestResolveRelationCustomColumnsFollowDirection(t *testing.T) {
	schema := buildClientsProjectsSchema(t, true)

	forward, err := schema.ResolveRelation("clients", "projects", "")
	if err != nil {
		t.Fatalf("ResolveRelation forward: %v", err)
	}
	if len(forward.OriginCols) != 1 || forward.OriginCols[0] != "id" {
		t.Fatalf("got origin cols %+v", forward.OriginCols)
	}
	if len(forward.TargetCols) != 1 || forward.TargetCols[0] != "client_ref" {
		t.Fatalf("got target cols %+v", forward.TargetCols)
	}

	reverse, err := schema.ResolveRelation("projects", "clients", "")
	if err != nil {
		t.Fatalf("ResolveRelation reverse: %v", err)
	}
	if len(reverse.OriginCols) != 1 || reverse.OriginCols[0] != "client_ref" {
		t.Fatalf("got origin cols %+v", reverse.OriginCols)
	}
	if len(reverse.TargetCols) != 1 || reverse.TargetCols[0] != "id" {
		t.Fatalf("got target cols %+v", reverse.TargetCols)
	}
}

func TestResolveRelationParentIsAlwaysToOne(t *testing.T) {
	schema := buildTestSchema(t)
	rel, err := schema.ResolveRelation("posts", "users", "")
	if err != nil {
		t.Fatalf("ResolveRelation: %v", err)
	}
	if rel.Cardinality != CardinalityParent {
		t.Fatalf("expected CardinalityParent, got %v", rel.Cardinality)
	}
}

func TestResolveRelationChildIsAlwaysToMany(t *testing.T) {
	schema := buildTestSchema(t)
	rel, err := schema.ResolveRelation("users", "posts", "")
	if err != nil {
		t.Fatalf("ResolveRelation: %v", err)
	}
	if rel.Cardinality != CardinalityChild {
		t.Fatalf("expected CardinalityChild, got %v", rel.Cardinality)
	}
}
