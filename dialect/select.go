package dialect

import (
	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// buildSelectNode builds one Select node's core statement (no envelope),
// ANDing extraWhere — the correlation predicate a parent embed supplies —
// into its own WHERE. A nil extraWhere means this is the request's root
// node.
func buildSelectNode(schema *catalog.DbSchema, d Dialect, q *ir.Query, extraWhere *sqlb.Snippet) (rowSource, *apierr.Error) {
	sel := q.Select
	obj, ok := schema.Object("", sel.From)
	if !ok {
		return buildRpcSource(d, q)
	}
	alias := d.QuoteIdent(sel.From)

	pairs, cerr := buildRowPairs(d, obj, alias, sel.Select)
	if cerr != nil {
		return rowSource{}, cerr
	}
	subPairs, serr := buildSubSelectPairs(schema, d, q, alias)
	if serr != nil {
		return rowSource{}, serr
	}
	pairs = append(pairs, subPairs...)

	selectList := make([]sqlb.Snippet, 0, len(pairs))
	for _, p := range pairs {
		selectList = append(selectList, p.Expr.AddSQL(" AS "+d.QuoteIdent(p.Key)))
	}

	base := sqlb.SQL("SELECT ").Add(sqlb.Join(", ", selectList...)).AddSQL(" FROM " + alias)

	var whereConds []sqlb.Snippet
	if sel.Where != nil {
		w, werr := renderCondition(d, alias, sel.Where)
		if werr != nil {
			return rowSource{}, werr
		}
		whereConds = append(whereConds, w)
	}
	if extraWhere != nil {
		whereConds = append(whereConds, *extraWhere)
	}
	if len(whereConds) > 0 {
		base = base.AddSQL(" WHERE ").Add(sqlb.Join(" AND ", wrapParens(whereConds)...))
	}

	if len(sel.GroupBy) > 0 {
		groupSnips := make([]sqlb.Snippet, 0, len(sel.GroupBy))
		for _, g := range sel.GroupBy {
			groupSnips = append(groupSnips, sqlb.SQL(alias+"."+d.QuoteIdent(g)))
		}
		base = base.AddSQL(" GROUP BY ").Add(sqlb.Join(", ", groupSnips...))
	}

	countCore := base

	if len(sel.Order) > 0 {
		orderSnips := make([]sqlb.Snippet, 0, len(sel.Order))
		for _, o := range sel.Order {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			nulls := ""
			if o.NullsFirst != nil {
				if *o.NullsFirst {
					nulls = " NULLS FIRST"
				} else {
					nulls = " NULLS LAST"
				}
			}
			orderSnips = append(orderSnips, renderField(d, alias, o.Field).AddSQL(" "+dir+nulls))
		}
		base = base.AddSQL(" ORDER BY ").Add(sqlb.Join(", ", orderSnips...))
	}
	if sel.Limit != nil {
		base = base.AddSQL(" LIMIT " + itoa(*sel.Limit))
	}
	if sel.Offset != nil {
		base = base.AddSQL(" OFFSET " + itoa(*sel.Offset))
	}

	return rowSource{core: base, countCore: countCore, alias: alias, pairs: pairs}, nil
}

// buildRpcSource builds a `SELECT * FROM fn(args...)` core for a
// `rpc/<fn>` request: rpc functions are not modeled in the catalog, so
// their result columns are not known ahead of time and the row object is
// built from whatever the function returns, under dialects that support
// introspecting a function's row shape (`SELECT *`). Ordinary named
// columns still apply casts/aliases when the caller selected specific
// output columns.
func buildRpcSource(d Dialect, q *ir.Query) (rowSource, *apierr.Error) {
	sel := q.Select
	args := make([]sqlb.Snippet, 0, len(sel.RpcArgs))
	for name, p := range sel.RpcArgs {
		val, perr := d.EmitParam(p)
		if perr != nil {
			return rowSource{}, perr
		}
		args = append(args, sqlb.SQL(d.QuoteIdent(name)+" => ").Add(val))
	}
	call := sqlb.SQL(d.QuoteIdent(sel.From) + "(").Add(sqlb.Join(", ", args...)).AddSQL(")")
	alias := "_rpc"
	core := sqlb.SQL("SELECT * FROM ").Add(call).AddSQL(" AS " + alias)
	return rowSource{core: core, countCore: core, alias: alias, pairs: nil}, nil
}

// buildRowPairs resolves a Select node's own select-list items (simple
// columns, function calls, star) into key/expression pairs.
func buildRowPairs(d Dialect, obj *catalog.Object, alias string, items []ir.SelectItem) ([]ColumnPair, *apierr.Error) {
	var pairs []ColumnPair
	for _, it := range items {
		switch it.Kind {
		case ir.SelectItemStar:
			for _, c := range obj.Columns {
				pairs = append(pairs, ColumnPair{Key: c.Name, Expr: sqlb.SQL(alias + "." + d.QuoteIdent(c.Name))})
			}

		case ir.SelectItemFunc:
			args := make([]sqlb.Snippet, 0, len(it.Args))
			for _, f := range it.Args {
				if f.Column == "*" {
					args = append(args, sqlb.SQL("*"))
					continue
				}
				args = append(args, renderField(d, alias, f))
			}
			expr := sqlb.SQL(upper(it.FuncName) + "(").Add(sqlb.Join(", ", args...)).AddSQL(")")
			if it.Cast != "" {
				expr = d.CastExpr(expr, it.Cast)
			}
			key := it.Alias
			if key == "" {
				key = it.FuncName
			}
			pairs = append(pairs, ColumnPair{Key: key, Expr: expr})

		default: // SelectItemSimple
			expr := renderField(d, alias, it.Field)
			if it.Cast != "" {
				expr = d.CastExpr(expr, it.Cast)
			}
			key := it.Alias
			if key == "" {
				key = it.Field.Column
			}
			pairs = append(pairs, ColumnPair{Key: key, Expr: expr})
		}
	}
	return pairs, nil
}

// buildSubSelectPairs resolves every embedded resource of q into a
// correlated-subquery column pair: a scalar JSON object for a to-one
// relation (parent, or custom with ToMany false), a JSON array for a
// to-many relation (child, many-to-many, or custom with ToMany true). The join predicate is pushed into the child's own WHERE so its
// order/limit/offset apply per parent row, not across the whole table.
func buildSubSelectPairs(schema *catalog.DbSchema, d Dialect, q *ir.Query, parentAlias string) ([]ColumnPair, *apierr.Error) {
	var pairs []ColumnPair
	for i := range q.SubSelects {
		ss := &q.SubSelects[i]
		childAlias := d.QuoteIdent(ss.Query.Select.From)

		joinWhere, jerr := buildJoinPredicate(d, ss.Join, parentAlias, childAlias)
		if jerr != nil {
			return nil, jerr
		}

		built, berr := buildSelectNode(schema, d, ss.Query, &joinWhere)
		if berr != nil {
			return nil, berr
		}

		rowObj := d.RowObjectExpr(outputPairs(d, childAlias, built.pairs))
		toOne := ss.Join.Cardinality == ir.CardinalityParent ||
			(ss.Join.Cardinality == ir.CardinalityCustom && !ss.Join.ToMany)
		var expr sqlb.Snippet
		if toOne {
			expr = sqlb.SQL("(SELECT ").Add(rowObj).AddSQL(" FROM (").Add(built.core).AddSQL(") AS " + childAlias + " LIMIT 1)")
		} else {
			expr = sqlb.SQL("(SELECT ").Add(d.ArrayAggExpr(rowObj)).AddSQL(" FROM (").Add(built.core).AddSQL(") AS " + childAlias + ")")
		}
		pairs = append(pairs, ColumnPair{Key: ss.Query.Name, Expr: expr})
	}
	return pairs, nil
}

// buildJoinPredicate renders the correlation predicate between a parent
// row and an embedded child, including the linking-table EXISTS clause for
// many-to-many relations.
func buildJoinPredicate(d Dialect, join ir.JoinInfo, parentAlias, childAlias string) (sqlb.Snippet, *apierr.Error) {
	if join.Cardinality == ir.CardinalityManyToMany {
		through := d.QuoteIdent(join.Through)
		var conds []sqlb.Snippet
		for i, tc := range join.ThroughTargetCols {
			conds = append(conds, sqlb.SQL(through+"."+d.QuoteIdent(tc)+" = "+childAlias+"."+d.QuoteIdent(join.TargetCols[i])))
		}
		for i, oc := range join.ThroughOriginCols {
			conds = append(conds, sqlb.SQL(through+"."+d.QuoteIdent(oc)+" = "+parentAlias+"."+d.QuoteIdent(join.OriginCols[i])))
		}
		return sqlb.SQL("EXISTS (SELECT 1 FROM " + through + " WHERE ").Add(sqlb.Join(" AND ", conds...)).AddSQL(")"), nil
	}
	var conds []sqlb.Snippet
	for i, tc := range join.TargetCols {
		conds = append(conds, sqlb.SQL(childAlias+"."+d.QuoteIdent(tc)+" = "+parentAlias+"."+d.QuoteIdent(join.OriginCols[i])))
	}
	return sqlb.Join(" AND ", conds...), nil
}

// renderField turns an ir.Field (a column plus its JSON path chain) into a
// value expression against tableAlias.
func renderField(d Dialect, tableAlias string, f ir.Field) sqlb.Snippet {
	expr := sqlb.SQL(tableAlias + "." + d.QuoteIdent(f.Column))
	for i, step := range f.Path {
		expr = d.JSONPathStep(expr, step, i == len(f.Path)-1)
	}
	return expr
}

// renderCondition recursively renders a Condition (single predicate or
// and/or group) into a boolean SQL expression.
func renderCondition(d Dialect, tableAlias string, c *ir.Condition) (sqlb.Snippet, *apierr.Error) {
	if c == nil {
		return sqlb.SQL("TRUE"), nil
	}
	switch c.Kind {
	case ir.ConditionGroup:
		sep := " AND "
		if c.LogicOp == ir.LogicOr {
			sep = " OR "
		}
		parts := make([]sqlb.Snippet, len(c.Conditions))
		for i := range c.Conditions {
			p, perr := renderCondition(d, tableAlias, &c.Conditions[i])
			if perr != nil {
				return sqlb.Snippet{}, perr
			}
			parts[i] = sqlb.SQL("(").Add(p).AddSQL(")")
		}
		joined := sqlb.Join(sep, parts...)
		if c.Negate {
			return sqlb.SQL("NOT (").Add(joined).AddSQL(")"), nil
		}
		return joined, nil
	default:
		return renderSingleCondition(d, tableAlias, c)
	}
}

func renderSingleCondition(d Dialect, tableAlias string, c *ir.Condition) (sqlb.Snippet, *apierr.Error) {
	field := renderField(d, tableAlias, c.Field)
	pred, ferr := renderFilter(d, tableAlias, field, c.Filter)
	if ferr != nil {
		return sqlb.Snippet{}, ferr
	}
	if c.Negate {
		return sqlb.SQL("NOT (").Add(pred).AddSQL(")"), nil
	}
	return pred, nil
}

func renderFilter(d Dialect, tableAlias string, field sqlb.Snippet, f ir.Filter) (sqlb.Snippet, *apierr.Error) {
	switch f.Kind {
	case ir.FilterIn:
		vals := make([]sqlb.Snippet, 0, len(f.List))
		for _, p := range f.List {
			v, verr := d.EmitParam(p)
			if verr != nil {
				return sqlb.Snippet{}, verr
			}
			vals = append(vals, v)
		}
		return field.AddSQL(" IN (").Add(sqlb.Join(", ", vals...)).AddSQL(")"), nil

	case ir.FilterIs:
		switch f.Is {
		case ir.IsNull:
			return field.AddSQL(" IS NULL"), nil
		case ir.IsTrue:
			return field.AddSQL(" IS TRUE"), nil
		case ir.IsFalse:
			return field.AddSQL(" IS FALSE"), nil
		default:
			return field.AddSQL(" IS UNKNOWN"), nil
		}

	case ir.FilterBetween:
		lo, lerr := d.EmitParam(f.Low)
		if lerr != nil {
			return sqlb.Snippet{}, lerr
		}
		hi, herr := d.EmitParam(f.High)
		if herr != nil {
			return sqlb.Snippet{}, herr
		}
		return field.AddSQL(" BETWEEN ").Add(lo).AddSQL(" AND ").Add(hi), nil

	case ir.FilterFts:
		tsFunc := "to_tsquery"
		switch f.FtsOp {
		case "plfts":
			tsFunc = "plainto_tsquery"
		case "phfts":
			tsFunc = "phraseto_tsquery"
		case "wfts":
			tsFunc = "websearch_to_tsquery"
		}
		v, verr := d.EmitParam(f.Val)
		if verr != nil {
			return sqlb.Snippet{}, verr
		}
		call := sqlb.SQL(tsFunc + "(")
		if f.Lang != "" {
			lang, lerr := d.EmitParam(ir.Param{Kind: ir.ParamScalar, Scalar: f.Lang})
			if lerr != nil {
				return sqlb.Snippet{}, lerr
			}
			call = call.Add(lang).AddSQL(", ")
		}
		call = call.Add(v).AddSQL(")")
		return field.AddSQL(" @@ ").Add(call), nil

	case ir.FilterCol:
		opSQL, oerr := d.OpSQL(f.ColOp)
		if oerr != nil {
			return sqlb.Snippet{}, oerr
		}
		rhs := renderField(d, tableAlias, f.RHSField)
		return field.AddSQL(" " + opSQL + " ").Add(rhs), nil

	default: // FilterOp
		opSQL, oerr := d.OpSQL(f.Op)
		if oerr != nil {
			return sqlb.Snippet{}, oerr
		}
		v, verr := d.EmitParam(f.Val)
		if verr != nil {
			return sqlb.Snippet{}, verr
		}
		return field.AddSQL(" " + opSQL + " ").Add(v), nil
	}
}
