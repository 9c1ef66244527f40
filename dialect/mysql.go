package dialect

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// MySQL has no RETURNING clause at all, on any statement: every write goes
// through FormatWrite's two-phase rewrite, the same path SQLite takes. An
// UPDATE with representation first SELECTs the matching primary keys, and
// a DELETE's representation is built before the mutation runs.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) PlaceholderStyle() sqlb.PlaceholderStyle { return sqlb.PlaceholderQuestion }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m MySQL) EmitParam(v ir.Param) (sqlb.Snippet, *apierr.Error) {
	switch v.Kind {
	case ir.ParamList:
		return sqlb.Snippet{}, apierr.Newf(apierr.KindParseRequest, "mysql has no native array literal for this filter")
	case ir.ParamJSON:
		return sqlb.P(string(v.JSON)), nil
	case ir.ParamLiteral:
		return sqlb.SQL(v.Literal), nil
	default:
		return sqlb.P(v.Scalar), nil
	}
}

func (MySQL) JSONPathStep(expr sqlb.Snippet, step ir.JSONPathStep, final bool) sqlb.Snippet {
	key := mysqlJSONStepKey(step)
	if step.AsText && final {
		return sqlb.SQL("JSON_UNQUOTE(JSON_EXTRACT(").Add(expr).AddSQL(", " + key + "))")
	}
	return sqlb.SQL("JSON_EXTRACT(").Add(expr).AddSQL(", " + key + ")")
}

func (MySQL) RowObjectExpr(pairs []ColumnPair) sqlb.Snippet {
	args := make([]sqlb.Snippet, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, sqlb.SQL("'"+strings.ReplaceAll(p.Key, "'", "''")+"'"), p.Expr)
	}
	return sqlb.SQL("JSON_OBJECT(").Add(sqlb.Join(", ", args...)).AddSQL(")")
}

func (MySQL) ArrayAggExpr(rowObj sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("COALESCE(JSON_ARRAYAGG(").Add(rowObj).AddSQL("), JSON_ARRAY())")
}

func (MySQL) CastExpr(expr sqlb.Snippet, sqlType string) sqlb.Snippet {
	t := sqlType
	if t == "text" {
		t = "CHAR"
	}
	return sqlb.SQL("CAST(").Add(expr).AddSQL(" AS " + t + ")")
}

func (MySQL) ConcatExpr(parts ...sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("CONCAT(").Add(sqlb.Join(", ", parts...)).AddSQL(")")
}

func (MySQL) OpSQL(op string) (string, *apierr.Error) {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=", "like":
		return op, nil
	case "ilike":
		return "like", nil // MySQL's default collation is case-insensitive
	default:
		return "", apierr.Newf(apierr.KindParseRequest, "operator %q is not supported by mysql", op)
	}
}

func (MySQL) SupportsReturningInCTE() bool { return false }

func (MySQL) SupportsWrites() bool { return true }

func (MySQL) SupportsGUC() bool { return false }

func (MySQL) GucStatusExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }

func (MySQL) GucHeadersExpr(computed sqlb.Snippet) sqlb.Snippet { return computed }

func mysqlJSONStepKey(step ir.JSONPathStep) string {
	if step.Index != nil {
		return "'$[" + itoa(*step.Index) + "]'"
	}
	return "'$." + strings.ReplaceAll(step.Key, "'", "''") + "'"
}
