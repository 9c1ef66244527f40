package dialect

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// SQLite is grounded directly on api/database/build_query.go's
// json_object/json_group_array pattern; it lacks RETURNING nested inside a
// CTE (only a bare top-level RETURNING works), so writes go through
// FormatWrite's two-phase rewrite instead of Format.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) PlaceholderStyle() sqlb.PlaceholderStyle { return sqlb.PlaceholderQuestion }

func (SQLite) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (s SQLite) EmitParam(v ir.Param) (sqlb.Snippet, *apierr.Error) {
	switch v.Kind {
	case ir.ParamList:
		return sqlb.Snippet{}, apierr.Newf(apierr.KindParseRequest, "sqlite has no native array literal for this filter")
	case ir.ParamJSON:
		return sqlb.P(string(v.JSON)), nil
	case ir.ParamLiteral:
		return sqlb.SQL(v.Literal), nil
	default:
		return sqlb.P(v.Scalar), nil
	}
}

func (SQLite) JSONPathStep(expr sqlb.Snippet, step ir.JSONPathStep, final bool) sqlb.Snippet {
	op := "->"
	if step.AsText {
		op = "->>"
	}
	key := sqliteJSONStepKey(step)
	return expr.AddSQL(op).AddSQL(key)
}

func (SQLite) RowObjectExpr(pairs []ColumnPair) sqlb.Snippet {
	args := make([]sqlb.Snippet, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, sqlb.SQL("'"+strings.ReplaceAll(p.Key, "'", "''")+"'"), p.Expr)
	}
	return sqlb.SQL("json_object(").Add(sqlb.Join(", ", args...)).AddSQL(")")
}

func (SQLite) ArrayAggExpr(rowObj sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("COALESCE(json_group_array(").Add(rowObj).AddSQL("), '[]')")
}

func (SQLite) CastExpr(expr sqlb.Snippet, sqlType string) sqlb.Snippet {
	t := sqlType
	if t == "text" {
		t = "TEXT"
	}
	return sqlb.SQL("CAST(").Add(expr).AddSQL(" AS " + t + ")")
}

func (SQLite) ConcatExpr(parts ...sqlb.Snippet) sqlb.Snippet {
	return sqlb.Join(" || ", parts...)
}

func (SQLite) OpSQL(op string) (string, *apierr.Error) {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=", "like":
		return op, nil
	case "ilike":
		return "like", nil // SQLite's LIKE is case-insensitive for ASCII by default
	default:
		return "", apierr.Newf(apierr.KindParseRequest, "operator %q is not supported by sqlite", op)
	}
}

func (SQLite) SupportsReturningInCTE() bool { return false }

func (SQLite) SupportsWrites() bool { return true }

func (SQLite) SupportsGUC() bool { return false }

func (SQLite) GucStatusExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }

func (SQLite) GucHeadersExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }

func sqliteJSONStepKey(step ir.JSONPathStep) string {
	if step.Index != nil {
		return "'$[" + itoa(*step.Index) + "]'"
	}
	return "'$." + strings.ReplaceAll(step.Key, "'", "''") + "'"
}
