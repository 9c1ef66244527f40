package dialect

import (
	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// buildInsertSource builds an INSERT ... RETURNING core usable directly
// inside the _source CTE of Format, for dialects where
// SupportsReturningInCTE() is true. Two-phase dialects never call this
// directly; see FormatWrite.
func buildInsertSource(schema *catalog.DbSchema, d Dialect, q *ir.Query) (rowSource, *apierr.Error) {
	ins := q.Insert
	obj, ok := schema.Object("", ins.Into)
	if !ok {
		return rowSource{}, apierr.UnknownTableErr(ins.Into)
	}
	if !obj.Writable {
		return rowSource{}, apierr.ParseErr("%q is not writable", ins.Into)
	}

	cols := make([]sqlb.Snippet, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = sqlb.SQL(d.QuoteIdent(c))
	}

	rowTuples := make([]sqlb.Snippet, len(ins.Payload))
	for r, row := range ins.Payload {
		vals := make([]sqlb.Snippet, len(ins.Columns))
		for i, c := range ins.Columns {
			p, perr := paramFor(row[c])
			if perr != nil {
				return rowSource{}, perr
			}
			v, verr := d.EmitParam(p)
			if verr != nil {
				return rowSource{}, verr
			}
			vals[i] = v
		}
		rowTuples[r] = sqlb.SQL("(").Add(sqlb.Join(", ", vals...)).AddSQL(")")
	}

	stmt := sqlb.SQL("INSERT INTO " + d.QuoteIdent(ins.Into) + " (").
		Add(sqlb.Join(", ", cols...)).
		AddSQL(") VALUES ").
		Add(sqlb.Join(", ", rowTuples...))

	if ins.OnConflict != nil {
		stmt = appendOnConflict(d, stmt, ins.OnConflict)
	}

	rs, rerr := finishReturning(d, obj, stmt, ins.Returning, ins.Select)
	if rerr != nil {
		return rowSource{}, rerr
	}
	rs.insertRowCount = len(ins.Payload)
	return rs, nil
}

// buildUpdateSource builds an UPDATE ... RETURNING core for single-statement
// dialects.
func buildUpdateSource(schema *catalog.DbSchema, d Dialect, q *ir.Query) (rowSource, *apierr.Error) {
	upd := q.Update
	obj, ok := schema.Object("", upd.Table)
	if !ok {
		return rowSource{}, apierr.UnknownTableErr(upd.Table)
	}
	if !obj.Writable {
		return rowSource{}, apierr.ParseErr("%q is not writable", upd.Table)
	}
	if err := requirePkEqualityFilter(obj, upd.Where); err != nil {
		return rowSource{}, err
	}

	alias := d.QuoteIdent(upd.Table)
	sets := make([]sqlb.Snippet, 0, len(upd.Columns))
	for _, c := range upd.Columns {
		p, perr := paramFor(upd.Payload[c])
		if perr != nil {
			return rowSource{}, perr
		}
		v, verr := d.EmitParam(p)
		if verr != nil {
			return rowSource{}, verr
		}
		sets = append(sets, sqlb.SQL(d.QuoteIdent(c)+" = ").Add(v))
	}

	stmt := sqlb.SQL("UPDATE " + alias + " SET ").Add(sqlb.Join(", ", sets...))
	if upd.Where != nil {
		w, werr := renderCondition(d, alias, upd.Where)
		if werr != nil {
			return rowSource{}, werr
		}
		stmt = stmt.AddSQL(" WHERE ").Add(w)
	}

	return finishReturning(d, obj, stmt, upd.Returning, upd.Select)
}

// buildDeleteSource builds a DELETE ... RETURNING core for single-statement
// dialects.
func buildDeleteSource(schema *catalog.DbSchema, d Dialect, q *ir.Query) (rowSource, *apierr.Error) {
	del := q.Delete
	obj, ok := schema.Object("", del.From)
	if !ok {
		return rowSource{}, apierr.UnknownTableErr(del.From)
	}
	if !obj.Writable {
		return rowSource{}, apierr.ParseErr("%q is not writable", del.From)
	}

	alias := d.QuoteIdent(del.From)
	stmt := sqlb.SQL("DELETE FROM " + alias)
	if del.Where != nil {
		w, werr := renderCondition(d, alias, del.Where)
		if werr != nil {
			return rowSource{}, werr
		}
		stmt = stmt.AddSQL(" WHERE ").Add(w)
	}

	return finishReturning(d, obj, stmt, del.Returning, del.Select)
}

// finishReturning appends `RETURNING <cols>` to a write statement and
// packages it as a rowSource whose pairs mirror the requested select list
// (or every column, when none was requested), so the outer envelope builds
// the same JSON body shape a read would have produced. countCore is left
// unset: a write has no unpaginated form distinct from the mutating
// statement itself, and assembleEnvelope never re-runs a write's countCore
// (doing so would mutate, or for DELETE fail to find, rows _source already
// consumed) — it reads the row count back from _pt instead.
func finishReturning(d Dialect, obj *catalog.Object, stmt sqlb.Snippet, returning []string, selectItems []ir.SelectItem) (rowSource, *apierr.Error) {
	cols := returning
	if len(cols) == 0 {
		for _, c := range obj.Columns {
			cols = append(cols, c.Name)
		}
	}
	retSnips := make([]sqlb.Snippet, len(cols))
	for i, c := range cols {
		retSnips[i] = sqlb.SQL(d.QuoteIdent(c))
	}
	stmt = stmt.AddSQL(" RETURNING ").Add(sqlb.Join(", ", retSnips...))

	pairs := make([]ColumnPair, len(cols))
	for i, c := range cols {
		pairs[i] = ColumnPair{Key: c, Expr: sqlb.SQL("_source." + d.QuoteIdent(c))}
	}
	return rowSource{
		core:      stmt,
		alias:     "_source",
		pairs:     pairs,
		table:     obj.Name,
		pkCols:    obj.PrimaryKeyColumns(),
	}, nil
}

// appendOnConflict renders `ON CONFLICT (cols) DO UPDATE SET col=excluded.col`
// or `ON CONFLICT (cols) DO NOTHING`, grounded on queries.go's UpsertJSON.
func appendOnConflict(d Dialect, stmt sqlb.Snippet, oc *ir.OnConflict) sqlb.Snippet {
	targetCols := make([]sqlb.Snippet, len(oc.TargetCols))
	for i, c := range oc.TargetCols {
		targetCols[i] = sqlb.SQL(d.QuoteIdent(c))
	}
	stmt = stmt.AddSQL(" ON CONFLICT (").Add(sqlb.Join(", ", targetCols...)).AddSQL(")")

	switch oc.Resolution {
	case ir.ResolutionIgnoreDuplicates:
		return stmt.AddSQL(" DO NOTHING")
	case ir.ResolutionMergeDuplicates:
		sets := make([]sqlb.Snippet, len(oc.TargetCols))
		for i, c := range oc.TargetCols {
			sets[i] = sqlb.SQL(d.QuoteIdent(c) + " = excluded." + d.QuoteIdent(c))
		}
		return stmt.AddSQL(" DO UPDATE SET ").Add(sqlb.Join(", ", sets...))
	default:
		return stmt
	}
}

// requirePkEqualityFilter rejects an UPDATE whose WHERE does not pin every
// primary key column to an exact equality, the PUT-must-match-full-pk
// invariant: a partial-key filter on a PUT silently affecting more than
// one row is an error, not a wide update.
func requirePkEqualityFilter(obj *catalog.Object, where *ir.Condition) *apierr.Error {
	pk := obj.PrimaryKeyColumns()
	if len(pk) == 0 {
		return nil
	}
	seen := map[string]bool{}
	collectEqualityColumns(where, seen)
	for _, c := range pk {
		if !seen[c] {
			return apierr.PutMatchingPkErr()
		}
	}
	return nil
}

func collectEqualityColumns(c *ir.Condition, seen map[string]bool) {
	if c == nil {
		return
	}
	switch c.Kind {
	case ir.ConditionGroup:
		if c.LogicOp == ir.LogicOr || c.Negate {
			return
		}
		for i := range c.Conditions {
			collectEqualityColumns(&c.Conditions[i], seen)
		}
	default:
		if !c.Negate && c.Filter.Kind == ir.FilterOp && c.Filter.Op == "=" {
			seen[c.Field.Column] = true
		}
	}
}

// paramFor wraps a raw JSON-decoded payload value as an ir.Param, tagging
// lists so EmitParam can special-case array literals per dialect.
func paramFor(v any) (ir.Param, *apierr.Error) {
	if list, ok := v.([]any); ok {
		return ir.Param{Kind: ir.ParamList, List: list}, nil
	}
	return ir.Param{Kind: ir.ParamScalar, Scalar: v}, nil
}

// TwoPhasePlan is a write translated for a dialect that cannot express
// RETURNING inside a CTE (SQLite, MySQL): running it takes two statements
// instead of one. Capture runs first and records enough identity to
// re-select representation; Mutate performs the actual write; Represent
// (built against a clone of the original query, filtered to the captured
// identity) produces the same envelope shape Format would have, and is
// only needed when Preferences.Return asks for it.
type TwoPhasePlan struct {
	// Kind records which write operation this plan came from, letting the
	// executor tell apart the two empty-Capture cases: DELETE (Represent
	// already built against the pre-mutation rows, must run before Mutate)
	// and INSERT (Represent waits on Mutate's LastInsertId).
	Kind ir.NodeKind

	// PreRequest, when non-nil, must run first, in the same transaction as
	// Capture/Mutate; its failure aborts the transaction, per spec.md §5.
	PreRequest *Result

	// Capture is a SELECT of the primary-key columns of every row the
	// write will touch, run before Mutate. Only an UPDATE that needs
	// representation on a table with a primary key sets it; it is empty
	// for INSERT (the rows do not exist yet) and for DELETE (whose
	// representation is built before Mutate instead).
	Capture Result

	// Mutate is the bare INSERT/UPDATE/DELETE statement, no RETURNING.
	Mutate Result

	// NeedsRepresentation is false when Preferences.Return ==
	// ReturnMinimal, in which case Represent is never built or run.
	NeedsRepresentation bool

	// RepresentBuilder formats the representation query: a synthetic GET
	// over the written table, filtered to the given primary-key values.
	// For DELETE it ignores its argument and returns the query built
	// before the mutation. Nil when NeedsRepresentation is false, and also
	// when the table's primary key rules out a re-select (INSERT needs
	// exactly one primary-key column, UPDATE at least one).
	RepresentBuilder func(pkValues []any) (Result, *apierr.Error)
}

// FormatWrite builds the two-phase plan for INSERT/UPDATE/DELETE on a
// dialect where SupportsReturningInCTE() is false. The caller (the
// executor, not this package) is responsible for running Capture, then
// Mutate, then — only if NeedsRepresentation — calling RepresentBuilder
// with the captured primary-key values and running the result, assembling
// the final envelope fields itself since they now come from two round
// trips instead of one.
//
// DELETE is the one case where capture must happen before the mutation:
// a deleted row cannot be re-selected afterward, so its representation is
// captured as a full envelope-shaped query (reusing Format against a
// synthetic select) before the DELETE runs, and RepresentBuilder simply
// replays that already-built result.
func FormatWrite(schema *catalog.DbSchema, d Dialect, req *ir.ApiRequest, hook *PreRequestHook) (TwoPhasePlan, *apierr.Error) {
	q := &req.Query
	if !d.SupportsWrites() {
		return TwoPhasePlan{}, apierr.Newf(apierr.KindParseRequest, "%s does not support write operations", d.Name())
	}

	needsRepr := req.Preferences.Return != ir.ReturnMinimal

	var plan TwoPhasePlan
	var err *apierr.Error
	switch q.Kind {
	case ir.KindDelete:
		plan, err = formatTwoPhaseDelete(schema, d, req, needsRepr)
	case ir.KindInsert:
		plan, err = formatTwoPhaseInsert(schema, d, req, needsRepr)
	default:
		plan, err = formatTwoPhaseUpdate(schema, d, req, needsRepr)
	}
	if err != nil {
		return TwoPhasePlan{}, err
	}
	plan.Kind = q.Kind
	if hook != nil {
		plan.PreRequest = &Result{SQL: "SELECT " + d.QuoteIdent(hook.Schema) + "." + d.QuoteIdent(hook.Function) + "()"}
	}
	return plan, nil
}

func formatTwoPhaseDelete(schema *catalog.DbSchema, d Dialect, req *ir.ApiRequest, needsRepr bool) (TwoPhasePlan, *apierr.Error) {
	del := req.Query.Delete
	obj, ok := schema.Object("", del.From)
	if !ok {
		return TwoPhasePlan{}, apierr.UnknownTableErr(del.From)
	}

	var plan TwoPhasePlan
	plan.NeedsRepresentation = needsRepr

	if needsRepr {
		reprReq := syntheticSelectRequest(req, del.From, del.Where, del.Returning, del.Select)
		result, rerr := Format(schema, d, reprReq, nil)
		if rerr != nil {
			return TwoPhasePlan{}, rerr
		}
		plan.RepresentBuilder = func([]any) (Result, *apierr.Error) { return result, nil }
	}

	alias := d.QuoteIdent(del.From)
	stmt := sqlb.SQL("DELETE FROM " + alias)
	if del.Where != nil {
		w, werr := renderCondition(d, alias, del.Where)
		if werr != nil {
			return TwoPhasePlan{}, werr
		}
		stmt = stmt.AddSQL(" WHERE ").Add(w)
	}
	sql, params, _ := sqlb.Finalize(stmt, d.PlaceholderStyle(), 1)
	plan.Mutate = Result{SQL: sql, Params: params}

	_ = obj
	return plan, nil
}

func formatTwoPhaseUpdate(schema *catalog.DbSchema, d Dialect, req *ir.ApiRequest, needsRepr bool) (TwoPhasePlan, *apierr.Error) {
	upd := req.Query.Update
	obj, ok := schema.Object("", upd.Table)
	if !ok {
		return TwoPhasePlan{}, apierr.UnknownTableErr(upd.Table)
	}
	if err := requirePkEqualityFilter(obj, upd.Where); err != nil {
		return TwoPhasePlan{}, err
	}

	var plan TwoPhasePlan
	plan.NeedsRepresentation = needsRepr

	pk := obj.PrimaryKeyColumns()
	if needsRepr && len(pk) > 0 {
		capture, cerr := buildPkCaptureSelect(d, obj, upd.Table, upd.Where)
		if cerr != nil {
			return TwoPhasePlan{}, cerr
		}
		plan.Capture = capture

		plan.RepresentBuilder = func(pkValues []any) (Result, *apierr.Error) {
			pkFilter := pkEqualityCondition(pk, pkValues)
			reprReq := syntheticSelectRequest(req, upd.Table, pkFilter, upd.Returning, upd.Select)
			return Format(schema, d, reprReq, nil)
		}
	}

	alias := d.QuoteIdent(upd.Table)
	sets := make([]sqlb.Snippet, 0, len(upd.Columns))
	for _, c := range upd.Columns {
		p, perr := paramFor(upd.Payload[c])
		if perr != nil {
			return TwoPhasePlan{}, perr
		}
		v, verr := d.EmitParam(p)
		if verr != nil {
			return TwoPhasePlan{}, verr
		}
		sets = append(sets, sqlb.SQL(d.QuoteIdent(c)+" = ").Add(v))
	}
	stmt := sqlb.SQL("UPDATE " + alias + " SET ").Add(sqlb.Join(", ", sets...))
	if upd.Where != nil {
		w, werr := renderCondition(d, alias, upd.Where)
		if werr != nil {
			return TwoPhasePlan{}, werr
		}
		stmt = stmt.AddSQL(" WHERE ").Add(w)
	}
	sql, params, _ := sqlb.Finalize(stmt, d.PlaceholderStyle(), 1)
	plan.Mutate = Result{SQL: sql, Params: params}

	return plan, nil
}

// formatTwoPhaseInsert handles INSERT on every two-phase dialect (SQLite,
// MySQL). Representation is limited to the single row inserted, re-selected
// via the driver's LastInsertId rather than a captured PK list; a multi-row
// INSERT that asks for representation is rejected with a parse error.
func formatTwoPhaseInsert(schema *catalog.DbSchema, d Dialect, req *ir.ApiRequest, needsRepr bool) (TwoPhasePlan, *apierr.Error) {
	ins := req.Query.Insert
	obj, ok := schema.Object("", ins.Into)
	if !ok {
		return TwoPhasePlan{}, apierr.UnknownTableErr(ins.Into)
	}
	if len(ins.Payload) != 1 && needsRepr {
		return TwoPhasePlan{}, apierr.Newf(apierr.KindParseRequest, "%s cannot return representation for a multi-row insert", d.Name())
	}

	var plan TwoPhasePlan
	plan.NeedsRepresentation = needsRepr

	pk := obj.PrimaryKeyColumns()
	if needsRepr && len(pk) == 1 {
		plan.RepresentBuilder = func(pkValues []any) (Result, *apierr.Error) {
			pkFilter := pkEqualityCondition(pk, pkValues)
			reprReq := syntheticSelectRequest(req, ins.Into, pkFilter, ins.Returning, ins.Select)
			return Format(schema, d, reprReq, nil)
		}
	}

	cols := make([]sqlb.Snippet, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = sqlb.SQL(d.QuoteIdent(c))
	}
	rowTuples := make([]sqlb.Snippet, len(ins.Payload))
	for r, row := range ins.Payload {
		vals := make([]sqlb.Snippet, len(ins.Columns))
		for i, c := range ins.Columns {
			p, perr := paramFor(row[c])
			if perr != nil {
				return TwoPhasePlan{}, perr
			}
			v, verr := d.EmitParam(p)
			if verr != nil {
				return TwoPhasePlan{}, verr
			}
			vals[i] = v
		}
		rowTuples[r] = sqlb.SQL("(").Add(sqlb.Join(", ", vals...)).AddSQL(")")
	}
	stmt := sqlb.SQL("INSERT INTO " + d.QuoteIdent(ins.Into) + " (").
		Add(sqlb.Join(", ", cols...)).
		AddSQL(") VALUES ").
		Add(sqlb.Join(", ", rowTuples...))
	if ins.OnConflict != nil {
		stmt = appendOnConflict(d, stmt, ins.OnConflict)
	}
	sql, params, _ := sqlb.Finalize(stmt, d.PlaceholderStyle(), 1)
	plan.Mutate = Result{SQL: sql, Params: params}

	return plan, nil
}

// buildPkCaptureSelect builds `SELECT pk... FROM table WHERE <where>`, run
// before a two-phase UPDATE mutates the matching rows.
func buildPkCaptureSelect(d Dialect, obj *catalog.Object, table string, where *ir.Condition) (Result, *apierr.Error) {
	alias := d.QuoteIdent(table)
	pk := obj.PrimaryKeyColumns()
	cols := make([]sqlb.Snippet, len(pk))
	for i, c := range pk {
		cols[i] = sqlb.SQL(alias + "." + d.QuoteIdent(c))
	}
	stmt := sqlb.SQL("SELECT ").Add(sqlb.Join(", ", cols...)).AddSQL(" FROM " + alias)
	if where != nil {
		w, werr := renderCondition(d, alias, where)
		if werr != nil {
			return Result{}, werr
		}
		stmt = stmt.AddSQL(" WHERE ").Add(w)
	}
	sql, params, _ := sqlb.Finalize(stmt, d.PlaceholderStyle(), 1)
	return Result{SQL: sql, Params: params}, nil
}

// pkEqualityCondition builds an IR condition pinning every pk column to a
// captured value, used to re-select representation after a two-phase
// write.
func pkEqualityCondition(pk []string, values []any) *ir.Condition {
	if len(pk) == 1 {
		return &ir.Condition{
			Kind:  ir.ConditionSingle,
			Field: ir.Field{Column: pk[0]},
			Filter: ir.Filter{
				Kind: ir.FilterOp,
				Op:   "=",
				Val:  ir.Param{Kind: ir.ParamScalar, Scalar: values[0]},
			},
		}
	}
	conds := make([]ir.Condition, len(pk))
	for i, c := range pk {
		conds[i] = ir.Condition{
			Kind:  ir.ConditionSingle,
			Field: ir.Field{Column: c},
			Filter: ir.Filter{
				Kind: ir.FilterOp,
				Op:   "=",
				Val:  ir.Param{Kind: ir.ParamScalar, Scalar: values[i]},
			},
		}
	}
	return &ir.Condition{Kind: ir.ConditionGroup, LogicOp: ir.LogicAnd, Conditions: conds}
}

// syntheticSelectRequest builds a GET-shaped ApiRequest over table, reusing
// the caller's original select list (or every column, when none was
// requested) and preferences, for re-querying representation after a
// two-phase write.
func syntheticSelectRequest(orig *ir.ApiRequest, table string, where *ir.Condition, returning []string, selectItems []ir.SelectItem) *ir.ApiRequest {
	items := selectItems
	if len(items) == 0 {
		for _, c := range returning {
			items = append(items, ir.SelectItem{Kind: ir.SelectItemSimple, Field: ir.Field{Column: c}})
		}
	}
	if len(items) == 0 {
		items = []ir.SelectItem{{Kind: ir.SelectItemStar}}
	}
	return &ir.ApiRequest{
		Method:      "GET",
		Accept:      orig.Accept,
		Preferences: ir.Preferences{Count: ir.CountNone, Return: ir.ReturnRepresentation},
		SchemaName:  orig.SchemaName,
		Role:        orig.Role,
		Path:        orig.Path,
		Query: ir.Query{
			Kind:   ir.KindSelect,
			Select: &ir.Select{From: table, Where: where, Select: items},
		},
	}
}
