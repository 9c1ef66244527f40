package parser

import (
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
)

// comparisonOps is the set of simple `col=op.val` operators that compare
// a field against a single scalar parameter.
var comparisonOps = map[string]string{
	"eq": "=", "neq": "<>", "lt": "<", "lte": "<=", "gt": ">", "gte": ">=",
	"like": "like", "ilike": "ilike", "match": "~", "imatch": "~*",
	"cs": "@>", "cd": "<@", "ov": "&&",
	"sl": "<<", "sr": ">>", "nxr": "&<", "nxl": "&>", "adj": "-|-",
}

var ftsOps = map[string]bool{"fts": true, "plfts": true, "phfts": true, "wfts": true}

// parseFilterValue parses the value half of a `col=negate?op.arg` filter
// pair into an ir.Filter, validating the operator against the grammar of
// §4.3. colOp (a comparison whose argument is a parenthesized column,
// e.g. `eq.(other_col)`) is detected here too since it shares the op-name
// dispatch.
func parseFilterValue(raw string) (negate bool, filter ir.Filter, aerr *apierr.Error) {
	negate, op, rest := splitDotOperator(raw)
	if op == "" {
		return false, ir.Filter{}, apierr.ParseErr("malformed filter value %q", raw)
	}

	switch {
	case op == "in":
		list, err := parseListLiteral(rest)
		if err != nil {
			return false, ir.Filter{}, err
		}
		return negate, ir.Filter{Kind: ir.FilterIn, List: list}, nil

	case op == "is":
		iv, err := parseIsValue(rest)
		if err != nil {
			return false, ir.Filter{}, err
		}
		return negate, ir.Filter{Kind: ir.FilterIs, Is: iv}, nil

	case ftsOps[op]:
		lang, term := splitFtsLanguage(rest)
		return negate, ir.Filter{Kind: ir.FilterFts, FtsOp: op, Lang: lang, Val: scalarParam(term)}, nil

	case strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") && colOps[op]:
		other := rest[1 : len(rest)-1]
		f, ferr := parseField(other)
		if ferr != nil {
			return false, ir.Filter{}, ferr
		}
		return negate, ir.Filter{Kind: ir.FilterCol, ColOp: comparisonOps[op], RHSField: f}, nil

	default:
		sqlOp, ok := comparisonOps[op]
		if !ok {
			return false, ir.Filter{}, apierr.ParseErr("unknown filter operator %q", op)
		}
		return negate, ir.Filter{Kind: ir.FilterOp, Op: sqlOp, Val: scalarParam(rest)}, nil
	}
}

// colOps is the subset of comparisonOps valid in `op.(other_col)` form,
// i.e. every comparison operator except the text/pattern-matching ones.
var colOps = map[string]bool{
	"eq": true, "neq": true, "lt": true, "lte": true, "gt": true, "gte": true,
}

func splitFtsLanguage(rest string) (lang, term string) {
	if strings.HasPrefix(rest, "(") {
		if idx := strings.IndexByte(rest, ')'); idx >= 0 {
			return rest[1:idx], rest[idx+1:]
		}
	}
	return "", rest
}

// parseListLiteral parses the `in` operator's argument: either
// `{a,b,c}` or a bare CSV list, both honoring quoted entries with
// backslash escapes.
func parseListLiteral(rest string) ([]ir.Param, *apierr.Error) {
	body := rest
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
		body = body[1 : len(body)-1]
	}
	if body == "" {
		return nil, nil
	}
	parts := splitTopLevel(body, ',')
	out := make([]ir.Param, 0, len(parts))
	for _, p := range parts {
		out = append(out, scalarParam(p))
	}
	return out, nil
}

func parseIsValue(rest string) (ir.IsValue, *apierr.Error) {
	switch strings.ToLower(rest) {
	case "null":
		return ir.IsNull, nil
	case "true":
		return ir.IsTrue, nil
	case "false":
		return ir.IsFalse, nil
	case "unknown":
		return ir.IsUnknown, nil
	default:
		return "", apierr.ParseErr("invalid is. value %q", rest)
	}
}

// scalarParam wraps a raw filter-value string as an ir.Param, attempting
// an int64/float64/bool coercion so numeric and boolean columns bind with
// a native Go type rather than a string the driver must convert.
func scalarParam(raw string) ir.Param {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.Param{Kind: ir.ParamScalar, Scalar: n}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return ir.Param{Kind: ir.ParamScalar, Scalar: f}
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return ir.Param{Kind: ir.ParamScalar, Scalar: b}
	}
	return ir.Param{Kind: ir.ParamScalar, Scalar: raw}
}

// parseCondition builds a Condition for a single `col=value` filter pair,
// resolving col against obj (qualifying with a relation alias when the
// key is `rel.col` and scoped to an embed).
func parseCondition(obj *catalog.Object, key, value string) (ir.Condition, *apierr.Error) {
	f, ferr := parseField(key)
	if ferr != nil {
		return ir.Condition{}, ferr
	}
	if _, ok := obj.Column(f.Column); !ok {
		return ir.Condition{}, apierr.UnknownColumnErr(obj.Name, f.Column)
	}
	negate, filter, aerr := parseFilterValue(value)
	if aerr != nil {
		return ir.Condition{}, aerr
	}
	return ir.Condition{Kind: ir.ConditionSingle, Negate: negate, Field: f, Filter: filter}, nil
}

// parseLogicGroup parses an `and=(...)`/`or=(...)` value: a parenthesized,
// comma-separated list of `key.op.val` triples or nested groups, per the
// grammar of §4.3.
func parseLogicGroup(obj *catalog.Object, op ir.LogicOp, raw string) (ir.Condition, *apierr.Error) {
	negate, body := trimNotPrefix(raw)
	body = strings.TrimPrefix(body, "(")
	body = strings.TrimSuffix(body, ")")

	parts := splitTopLevel(body, ',')
	conds := make([]ir.Condition, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "and(") || strings.HasPrefix(p, "or(") ||
			strings.HasPrefix(p, "not.and(") || strings.HasPrefix(p, "not.or(") {
			nested, nerr := parseNestedGroup(obj, p)
			if nerr != nil {
				return ir.Condition{}, nerr
			}
			conds = append(conds, nested)
			continue
		}
		idx := strings.IndexByte(p, '.')
		if idx < 0 {
			return ir.Condition{}, apierr.ParseErr("malformed condition %q in %s group", p, op)
		}
		key := p[:idx]
		val := p[idx+1:]
		cond, cerr := parseCondition(obj, key, val)
		if cerr != nil {
			return ir.Condition{}, cerr
		}
		conds = append(conds, cond)
	}

	return ir.Condition{Kind: ir.ConditionGroup, Negate: negate, LogicOp: op, Conditions: conds}, nil
}

func parseNestedGroup(obj *catalog.Object, raw string) (ir.Condition, *apierr.Error) {
	negate, body := trimNotPrefix(raw)
	var op ir.LogicOp
	switch {
	case strings.HasPrefix(body, "and("):
		op = ir.LogicAnd
		body = strings.TrimPrefix(body, "and")
	case strings.HasPrefix(body, "or("):
		op = ir.LogicOr
		body = strings.TrimPrefix(body, "or")
	default:
		return ir.Condition{}, apierr.ParseErr("malformed nested group %q", raw)
	}
	cond, err := parseLogicGroup(obj, op, body)
	if err != nil {
		return ir.Condition{}, err
	}
	cond.Negate = cond.Negate || negate
	return cond, nil
}

func trimNotPrefix(s string) (bool, string) {
	if strings.HasPrefix(s, "not.") {
		return true, s[len("not."):]
	}
	return false, s
}
