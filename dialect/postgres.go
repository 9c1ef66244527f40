package dialect

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// Postgres is the full-featured adaptor: it is the only dialect that can
// express a write's RETURNING inside a CTE, and the only one with native
// range/array operators (cs/cd/ov/sl/sr/nxr/nxl/adj).
type Postgres struct{}

func (Postgres) Name() string { return "postgresql" }

func (Postgres) PlaceholderStyle() sqlb.PlaceholderStyle { return sqlb.PlaceholderDollar }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p Postgres) EmitParam(v ir.Param) (sqlb.Snippet, *apierr.Error) {
	switch v.Kind {
	case ir.ParamList:
		elems := make([]sqlb.Snippet, len(v.List))
		for i, e := range v.List {
			elems[i] = sqlb.P(e)
		}
		return sqlb.SQL("ARRAY[").Add(sqlb.Join(", ", elems...)).AddSQL("]"), nil
	case ir.ParamJSON:
		return sqlb.P(string(v.JSON)).AddSQL("::jsonb"), nil
	case ir.ParamLiteral:
		return sqlb.SQL(v.Literal), nil
	default:
		return sqlb.P(v.Scalar), nil
	}
}

func (Postgres) JSONPathStep(expr sqlb.Snippet, step ir.JSONPathStep, final bool) sqlb.Snippet {
	op := "->"
	if step.AsText {
		op = "->>"
	}
	key := jsonStepKey(step)
	return expr.AddSQL(op).AddSQL(key)
}

func (Postgres) RowObjectExpr(pairs []ColumnPair) sqlb.Snippet {
	args := make([]sqlb.Snippet, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, sqlb.SQL("'"+strings.ReplaceAll(p.Key, "'", "''")+"'"), p.Expr)
	}
	return sqlb.SQL("jsonb_build_object(").Add(sqlb.Join(", ", args...)).AddSQL(")")
}

func (Postgres) ArrayAggExpr(rowObj sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("COALESCE(jsonb_agg(").Add(rowObj).AddSQL("), '[]'::jsonb)")
}

func (Postgres) CastExpr(expr sqlb.Snippet, sqlType string) sqlb.Snippet {
	return sqlb.SQL("(").Add(expr).AddSQL(")::" + sqlType)
}

func (Postgres) ConcatExpr(parts ...sqlb.Snippet) sqlb.Snippet {
	return sqlb.Join(" || ", parts...)
}

func (Postgres) OpSQL(op string) (string, *apierr.Error) {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=", "like", "@>", "<@", "&&", "<<", ">>", "&<", "&>", "-|-":
		return op, nil
	case "ilike":
		return "ilike", nil
	case "~":
		return "~", nil
	case "~*":
		return "~*", nil
	default:
		return "", apierr.Newf(apierr.KindParseRequest, "operator %q is not supported by postgresql", op)
	}
}

func (Postgres) SupportsReturningInCTE() bool { return true }

func (Postgres) SupportsWrites() bool { return true }

func (Postgres) SupportsGUC() bool { return true }

// GucStatusExpr lets a db_pre_request hook override response_status by
// calling set_config('response.status', ..., true) before the main
// statement runs; current_setting's missing_ok argument makes an absent
// setting read back as an empty string rather than raising an error.
func (Postgres) GucStatusExpr(computed sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("COALESCE(NULLIF(current_setting('response.status', true), '')::int, ").
		Add(computed).AddSQL(")")
}

// GucHeadersExpr is the response_headers equivalent of GucStatusExpr; the
// override is expected to already be a JSON array of {name,value} objects.
func (Postgres) GucHeadersExpr(computed sqlb.Snippet) sqlb.Snippet {
	return sqlb.SQL("COALESCE(NULLIF(current_setting('response.headers', true), ''), ").
		Add(computed).AddSQL(")")
}

// jsonStepKey renders a JSONPathStep's right-hand operand as a Postgres
// literal: a quoted text key, or a bare integer array index.
func jsonStepKey(step ir.JSONPathStep) string {
	if step.Index != nil {
		return itoa(*step.Index)
	}
	return "'" + strings.ReplaceAll(step.Key, "'", "''") + "'"
}
