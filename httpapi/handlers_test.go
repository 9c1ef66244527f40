package httpapi

import (
	"errors"
	"reflect"
	"testing"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/parser"
)

func TestParseOrderedQueryPreservesOrder(t *testing.T) {
	got, err := parseOrderedQuery("select=id,name&id=eq.1&select=done")
	if err != nil {
		t.Fatalf("parseOrderedQuery: %v", err)
	}
	want := []parser.QueryPair{
		{Name: "select", Value: "id,name"},
		{Name: "id", Value: "eq.1"},
		{Name: "select", Value: "done"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseOrderedQueryUnescapes(t *testing.T) {
	got, err := parseOrderedQuery("name=eq.hello%20world")
	if err != nil {
		t.Fatalf("parseOrderedQuery: %v", err)
	}
	if len(got) != 1 || got[0].Value != "eq.hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseOrderedQueryEmpty(t *testing.T) {
	got, err := parseOrderedQuery("")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil, got %+v, %v", got, err)
	}
}

func TestJsonArrayToCSV(t *testing.T) {
	body := []byte(`[{"id":1,"name":"a"},{"id":2,"name":"b"}]`)
	csv, err := jsonArrayToCSV(body)
	if err != nil {
		t.Fatalf("jsonArrayToCSV: %v", err)
	}
	want := "id,name\n1,a\n2,b\n"
	if string(csv) != want {
		t.Fatalf("got %q, want %q", string(csv), want)
	}
}

func TestJsonArrayToCSVEmpty(t *testing.T) {
	csv, err := jsonArrayToCSV([]byte(`[]`))
	if err != nil {
		t.Fatalf("jsonArrayToCSV: %v", err)
	}
	if string(csv) != "" {
		t.Fatalf("expected empty CSV, got %q", string(csv))
	}
}

func TestUnwrapSingular(t *testing.T) {
	body, aerr := unwrapSingular([]byte(`[{"id":1}]`))
	if aerr != nil {
		t.Fatalf("unwrapSingular: %v", aerr)
	}
	if string(body) != `{"id":1}` {
		t.Fatalf("got %q", string(body))
	}
}

func TestUnwrapSingularRejectsMultipleRows(t *testing.T) {
	_, aerr := unwrapSingular([]byte(`[{"id":1},{"id":2}]`))
	if aerr == nil {
		t.Fatal("expected singularity error for 2 rows")
	}
	if aerr.Kind != apierr.KindSingularity {
		t.Fatalf("expected KindSingularity, got %v", aerr.Kind)
	}
}

func TestUnwrapSingularRejectsZeroRows(t *testing.T) {
	_, aerr := unwrapSingular([]byte(`[]`))
	if aerr == nil {
		t.Fatal("expected singularity error for 0 rows")
	}
}

func TestClassifyDBErrorUniqueViolation(t *testing.T) {
	aerr := classifyDBError(errors.New("UNIQUE constraint failed: users.email"))
	if aerr.Kind != apierr.KindDb {
		t.Fatalf("expected KindDb, got %v", aerr.Kind)
	}
}

func TestClassifyDBErrorUnknownTable(t *testing.T) {
	aerr := classifyDBError(errors.New("no such table: widgets"))
	if aerr.Kind != apierr.KindUnknownTable {
		t.Fatalf("expected KindUnknownTable, got %v", aerr.Kind)
	}
}

func TestClassifyDBErrorPostgresForeignKey(t *testing.T) {
	aerr := classifyDBError(errors.New(`insert or update on table "posts" violates foreign key constraint`))
	if aerr.Kind != apierr.KindDb {
		t.Fatalf("expected KindDb, got %v", aerr.Kind)
	}
}
