package dialect

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// ClickHouse is select-only: it never appears on the write path of
// Format/FormatWrite, per its OLAP role as an analytical read replica
// rather than a system of record. Placeholders are the named, typed
// {pN:Type} form ClickHouse's HTTP/native protocols expect.
type ClickHouse struct{}

func (ClickHouse) Name() string { return "clickhouse" }

func (ClickHouse) PlaceholderStyle() sqlb.PlaceholderStyle { return sqlb.PlaceholderClickHouse }

func (ClickHouse) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (c ClickHouse) EmitParam(v ir.Param) (sqlb.Snippet, *apierr.Error) {
	hint := v.TypeHint
	switch v.Kind {
	case ir.ParamList:
		elemType := hint
		if elemType == "" {
			elemType = "String"
		}
		elems := make([]sqlb.Snippet, len(v.List))
		for i, e := range v.List {
			elems[i] = sqlb.PTyped(e, elemType)
		}
		return sqlb.SQL("[").Add(sqlb.Join(", ", elems...)).AddSQL("]"), nil
	case ir.ParamJSON:
		return sqlb.PTyped(string(v.JSON), "String"), nil
	case ir.ParamLiteral:
		return sqlb.SQL(v.Literal), nil
	default:
		if hint == "" {
			hint = clickhouseTypeHint(v.Scalar)
		}
		return sqlb.PTyped(v.Scalar, hint), nil
	}
}

func clickhouseTypeHint(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int64"
	case float32, float64:
		return "Float64"
	case bool:
		return "UInt8"
	default:
		return "String"
	}
}

func (ClickHouse) JSONPathStep(expr sqlb.Snippet, step ir.JSONPathStep, final bool) sqlb.Snippet {
	if step.Index != nil {
		return sqlb.SQL("JSONExtractRaw(").Add(expr).AddSQL(", " + itoa(*step.Index+1) + ")")
	}
	key := "'" + strings.ReplaceAll(step.Key, "'", "''") + "'"
	fn := "JSONExtractRaw"
	if step.AsText && final {
		fn = "JSONExtractString"
	}
	return sqlb.SQL(fn + "(").Add(expr).AddSQL(", " + key + ")")
}

func (ClickHouse) RowObjectExpr(pairs []ColumnPair) sqlb.Snippet {
	keys := make([]sqlb.Snippet, len(pairs))
	vals := make([]sqlb.Snippet, len(pairs))
	for i, p := range pairs {
		keys[i] = sqlb.SQL("'" + strings.ReplaceAll(p.Key, "'", "''") + "'")
		vals[i] = sqlb.SQL("toString(").Add(p.Expr).AddSQL(")")
	}
	return sqlb.SQL("toJSONString(map(").
		Add(sqlb.Join(", ", interleave(keys, vals)...)).
		AddSQL("))")
}

// interleave zips two equal-length slices into key, value, key, value...
// order, the argument shape ClickHouse's map() constructor expects.
func interleave(a, b []sqlb.Snippet) []sqlb.Snippet {
	out := make([]sqlb.Snippet, 0, len(a)+len(b))
	for i := range a {
		out = append(out, a[i], b[i])
	}
	return out
}

func (ClickHouse) ArrayAggExpr(rowObj sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("concat('[', arrayStringConcat(groupArray(").Add(rowObj).AddSQL("), ','), ']')")
}

func (ClickHouse) CastExpr(expr sqlb.Snippet, sqlType string) sqlb.Snippet {
	t := sqlType
	if t == "text" {
		t = "String"
	}
	return sqlb.SQL("CAST(").Add(expr).AddSQL(" AS " + t + ")")
}

func (ClickHouse) ConcatExpr(parts ...sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("concat(").Add(sqlb.Join(", ", parts...)).AddSQL(")")
}

func (ClickHouse) OpSQL(op string) (string, *apierr.Error) {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=", "like":
		return op, nil
	case "ilike":
		return "ilike", nil
	default:
		return "", apierr.Newf(apierr.KindParseRequest, "operator %q is not supported by clickhouse", op)
	}
}

func (ClickHouse) SupportsReturningInCTE() bool { return false }

func (ClickHouse) SupportsWrites() bool { return false }

func (ClickHouse) SupportsGUC() bool { return false }

func (ClickHouse) GucStatusExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }

func (ClickHouse) GucHeadersExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }
