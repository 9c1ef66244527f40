package sqlb

import (
	"reflect"
	"testing"
)

func TestFinalizeDollarStyle(t *testing.T) {
	s := SQL("SELECT * FROM t WHERE a = ").Add(P(1)).AddSQL(" AND b = ").Add(P("x"))
	sql, params, next := Finalize(s, PlaceholderDollar, 1)
	if sql != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("got %q", sql)
	}
	if !reflect.DeepEqual(params, []any{1, "x"}) {
		t.Fatalf("got params %+v", params)
	}
	if next != 3 {
		t.Fatalf("expected next index 3, got %d", next)
	}
}

func TestFinalizeQuestionStyle(t *testing.T) {
	s := SQL("a = ").Add(P(1)).AddSQL(" AND b = ").Add(P(2))
	sql, params, _ := Finalize(s, PlaceholderQuestion, 1)
	if sql != "a = ? AND b = ?" {
		t.Fatalf("got %q", sql)
	}
	if len(params) != 2 {
		t.Fatalf("got params %+v", params)
	}
}

func TestFinalizeClickHouseStyleUsesTypeHint(t *testing.T) {
	s := SQL("a = ").Add(PTyped(1, "Int64"))
	sql, _, _ := Finalize(s, PlaceholderClickHouse, 1)
	if sql != "a = {p1:Int64}" {
		t.Fatalf("got %q", sql)
	}
}

func TestFinalizeClickHouseStyleDefaultsToString(t *testing.T) {
	s := P("x")
	sql, _, _ := Finalize(s, PlaceholderClickHouse, 1)
	if sql != "{p1:String}" {
		t.Fatalf("got %q", sql)
	}
}

func TestFinalizeStartIndexOffset(t *testing.T) {
	s := P("x").AddSQL(",").Add(P("y"))
	sql, _, next := Finalize(s, PlaceholderDollar, 3)
	if sql != "$3,$4" {
		t.Fatalf("got %q", sql)
	}
	if next != 5 {
		t.Fatalf("expected next 5, got %d", next)
	}
}

func TestJoinInsertsSeparatorBetweenParts(t *testing.T) {
	s := Join(", ", SQL("a"), SQL("b"), SQL("c"))
	sql, _, _ := Finalize(s, PlaceholderDollar, 1)
	if sql != "a, b, c" {
		t.Fatalf("got %q", sql)
	}
}

func TestJoinEmptyParts(t *testing.T) {
	s := Join(", ")
	if !s.IsEmpty() {
		t.Fatalf("expected empty snippet, got len %d", s.Len())
	}
}

func TestEmptySnippetSQL(t *testing.T) {
	if got := SQL(""); !got.IsEmpty() {
		t.Fatalf("expected SQL(\"\") to be empty, got len %d", got.Len())
	}
}

func TestAddParamAppendsSingleChunk(t *testing.T) {
	s := Empty().AddParam(42)
	if s.Len() != 1 {
		t.Fatalf("expected 1 chunk, got %d", s.Len())
	}
	sql, params, _ := Finalize(s, PlaceholderDollar, 1)
	if sql != "$1" || params[0] != 42 {
		t.Fatalf("got sql=%q params=%+v", sql, params)
	}
}
