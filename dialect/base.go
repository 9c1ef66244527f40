// Package dialect formats an ir.ApiRequest into a single SQL statement and
// its parameter list. The base algorithm below (Format) is shared by every
// backend; per-backend differences are isolated behind the Dialect
// capability set rather than expressed as subclasses, per the polymorphism
// note of spec.md §9: a tagged variant selects the adaptor, and every
// adaptor method is a pure function of its arguments.
//
// The row-aggregation shape is grounded on api/database/build_query.go's
// buildSelect/buildSelCurr: each embedded resource is joined as a derived
// table and folded into a JSON row object / array, generalized across
// dialects via RowObjectExpr/ArrayAggExpr so no dialect needs a row-type
// constructor the others lack (e.g. PostgreSQL's row_to_json).
package dialect

import (
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/sqlb"
)

// ColumnPair is one `key, value-expression` entry of a JSON row object.
type ColumnPair struct {
	Key  string
	Expr sqlb.Snippet
}

// Dialect is the capability set a formatter needs. Each method covers one
// concern called out in spec.md §4.5: identifier quoting, parameter
// emission, JSON path access, JSON row/array construction, casts, string
// concatenation, operator spelling, and whether RETURNING works inside a
// CTE.
type Dialect interface {
	Name() string
	PlaceholderStyle() sqlb.PlaceholderStyle
	QuoteIdent(name string) string
	EmitParam(p ir.Param) (sqlb.Snippet, *apierr.Error)
	JSONPathStep(expr sqlb.Snippet, step ir.JSONPathStep, final bool) sqlb.Snippet
	RowObjectExpr(pairs []ColumnPair) sqlb.Snippet
	ArrayAggExpr(rowObj sqlb.Snippet) sqlb.Snippet
	CastExpr(expr sqlb.Snippet, sqlType string) sqlb.Snippet
	ConcatExpr(parts ...sqlb.Snippet) sqlb.Snippet
	OpSQL(op string) (string, *apierr.Error)

	// SupportsReturningInCTE is true only for PostgreSQL: writes can be
	// expressed as one CTE that both mutates and returns rows. Every other
	// dialect reports false; FormatWrite performs the two-phase rewrite of
	// spec.md §4.5 instead of a single statement.
	SupportsReturningInCTE() bool

	// SupportsWrites is false only for ClickHouse, which is select-only.
	SupportsWrites() bool

	// SupportsGUC is true only for PostgreSQL: a pre-request hook can leave
	// a response.status/response.headers session setting behind for the
	// formatter to read back and prefer over the computed value.
	SupportsGUC() bool

	// GucStatusExpr wraps a computed response_status expression so a GUC
	// override, if one is present, takes precedence. Dialects without
	// SupportsGUC return computed unchanged.
	GucStatusExpr(computed sqlb.Snippet) sqlb.Snippet

	// GucHeadersExpr is the response_headers equivalent of GucStatusExpr.
	GucHeadersExpr(computed sqlb.Snippet) sqlb.Snippet
}

// PreRequestHook names a `schema.function()` invoked once per request,
// ahead of the main statement, inside the same CTE prelude and therefore
// the same transaction; per spec.md §5 its failure must abort the
// transaction, which is the executor's responsibility, not this package's.
type PreRequestHook struct {
	Schema   string
	Function string
}

// Result is a single statement plus its ordered parameters.
type Result struct {
	SQL    string
	Params []any
}

// rowSource is the result of building one level of the select tree: a core
// SELECT statement (no envelope) and the column pairs it exposes under its
// own alias, for a parent node to re-reference (`alias.key`) when building
// its own row object.
type rowSource struct {
	core      sqlb.Snippet
	countCore sqlb.Snippet // core without ORDER BY/LIMIT/OFFSET, for exact counts
	alias     string
	pairs     []ColumnPair

	// table and pkCols are set only for write sources (insert/update/delete),
	// letting assembleEnvelope build a Location header without a second
	// catalog lookup.
	table  string
	pkCols []string

	// insertRowCount is set only by buildInsertSource; a Location header is
	// only well-defined for a single inserted row, matching the existing
	// single-row-only simplification for two-phase INSERT representation.
	insertRowCount int
}

// outputPairs re-expresses pairs as references into alias's own projected
// columns, the shape a parent query sees once the child is wrapped as
// `(core) AS alias`.
func outputPairs(d Dialect, alias string, pairs []ColumnPair) []ColumnPair {
	out := make([]ColumnPair, len(pairs))
	for i, p := range pairs {
		out[i] = ColumnPair{Key: p.Key, Expr: sqlb.SQL(alias + "." + d.QuoteIdent(p.Key))}
	}
	return out
}

// Format runs the base algorithm of spec.md §4.4 for a read (GET or
// rpc) request, producing one statement that always returns exactly one
// row of (page_total, total_result_set, body, response_headers,
// response_status). Write requests on dialects that support RETURNING
// inside a CTE also go through Format; other dialects call FormatWrite.
// hook is nil for every internal synthetic re-select Format issues against
// itself (formatTwoPhase*'s RepresentBuilder): the hook is a once-per-request
// concern, not a once-per-statement one, so it only ever rides along on the
// caller's original request.
func Format(schema *catalog.DbSchema, d Dialect, req *ir.ApiRequest, hook *PreRequestHook) (Result, *apierr.Error) {
	q := &req.Query

	var rs rowSource
	var berr *apierr.Error
	switch q.Kind {
	case ir.KindSelect:
		rs, berr = buildSelectNode(schema, d, q, nil)
	case ir.KindInsert:
		if !d.SupportsWrites() {
			return Result{}, apierr.Newf(apierr.KindParseRequest, "%s does not support write operations", d.Name())
		}
		rs, berr = buildInsertSource(schema, d, q)
	case ir.KindUpdate:
		if !d.SupportsWrites() {
			return Result{}, apierr.Newf(apierr.KindParseRequest, "%s does not support write operations", d.Name())
		}
		rs, berr = buildUpdateSource(schema, d, q)
	case ir.KindDelete:
		if !d.SupportsWrites() {
			return Result{}, apierr.Newf(apierr.KindParseRequest, "%s does not support write operations", d.Name())
		}
		rs, berr = buildDeleteSource(schema, d, q)
	}
	if berr != nil {
		return Result{}, berr
	}

	return assembleEnvelope(d, rs, q.Kind, req.Preferences, hook)
}

// assembleEnvelope wraps a built rowSource in the
// WITH [_pre_req,] _source, _body, _pt[, _count] skeleton of spec.md §4.4
// and computes response_status/response_headers. _source is defined exactly
// once: _body and _pt both read it back by name rather than re-embedding
// rs.core's text a second time, which matters for writes (a data-modifying
// statement can only be referenced by name, never repeated as a subquery).
func assembleEnvelope(d Dialect, rs rowSource, kind ir.NodeKind, prefs ir.Preferences, hook *PreRequestHook) (Result, *apierr.Error) {
	rowObj := d.RowObjectExpr(outputPairs(d, "_source", rs.pairs))

	hasCount := prefs.Count == ir.CountExact

	out := sqlb.SQL("WITH ")
	if hook != nil {
		call := d.QuoteIdent(hook.Schema) + "." + d.QuoteIdent(hook.Function) + "()"
		out = out.AddSQL("_pre_req AS (SELECT " + call + " AS _ignored), ")
	}
	out = out.AddSQL("_source AS (").Add(rs.core).AddSQL("), ").
		AddSQL("_body AS (SELECT ").Add(d.ArrayAggExpr(rowObj)).AddSQL(" AS body FROM _source), ").
		AddSQL("_pt AS (SELECT count(*) AS page_total FROM _source)")

	// A write has no unpaginated form distinct from the mutating statement
	// itself, so finishReturning leaves countCore unset: building a _count
	// CTE from it would re-execute the INSERT/UPDATE/DELETE a second time,
	// mutating (or, for DELETE, finding gone) rows _source already
	// touched. _pt.page_total already holds exactly the row count a write
	// needs, read back from _source by name rather than re-run, so writes
	// reuse it instead of building _count at all.
	isWrite := kind != ir.KindSelect
	needsCountCTE := hasCount && !isWrite

	var totalExpr sqlb.Snippet
	switch {
	case hasCount && isWrite:
		totalExpr = sqlb.SQL("_pt.page_total")
	case needsCountCTE:
		out = out.AddSQL(", _count AS (SELECT count(*) AS total FROM (").Add(rs.countCore).AddSQL(") AS _cnt_source)")
		totalExpr = sqlb.SQL("_count.total")
	default:
		// CountNone and CountPlanned/CountEstimated (recorded open-question
		// decision): no portable plan-row estimate exists across four
		// engines, so planned/estimated modes fall back to a null total
		// rather than guessing.
		totalExpr = sqlb.SQL("NULL")
	}

	wantsLocation := kind == ir.KindInsert && prefs.Return == ir.ReturnRepresentation &&
		len(rs.pkCols) == 1 && rs.insertRowCount == 1
	if wantsLocation {
		out = out.AddSQL(", _loc AS (SELECT ").
			AddSQL(d.QuoteIdent(rs.pkCols[0]) + " AS _pk FROM _source LIMIT 1)")
	}

	status := responseStatus(kind, prefs)
	headers := responseHeaders(d, kind, prefs, rs, wantsLocation, totalExpr)
	if hook != nil && d.SupportsGUC() {
		status = d.GucStatusExpr(status)
		headers = d.GucHeadersExpr(headers)
	}

	out = out.AddSQL(" SELECT _pt.page_total, ").Add(totalExpr).
		AddSQL(" AS total_result_set, _body.body, ").Add(headers).
		AddSQL(" AS response_headers, ").Add(status).
		AddSQL(" AS response_status FROM _body, _pt")
	if needsCountCTE {
		out = out.AddSQL(", _count")
	}
	if wantsLocation {
		out = out.AddSQL(", _loc")
	}
	if hook != nil {
		// _pre_req is otherwise unreferenced; a planner that prunes unused
		// CTEs would then never invoke the hook at all, so it is cross-
		// joined in here purely to force its single row into the plan.
		out = out.AddSQL(", _pre_req")
	}

	sql, params, _ := sqlb.Finalize(out, d.PlaceholderStyle(), 1)
	return Result{SQL: sql, Params: params}, nil
}

// responseStatus computes the response_status column. GET's 206-vs-200
// split depends on row counts only the query itself knows, so it is
// rendered as a SQL CASE; every write status is fully determined by the
// parsed Prefer header and is emitted as a literal.
func responseStatus(kind ir.NodeKind, prefs ir.Preferences) sqlb.Snippet {
	switch kind {
	case ir.KindSelect:
		if prefs.Count == ir.CountExact {
			return sqlb.SQL("(CASE WHEN _pt.page_total < _count.total THEN 206 ELSE 200 END)")
		}
		return sqlb.SQL("200")
	case ir.KindInsert:
		if prefs.Return == ir.ReturnRepresentation {
			return sqlb.SQL("200")
		}
		return sqlb.SQL("201")
	default: // update, delete
		if prefs.Return == ir.ReturnRepresentation {
			return sqlb.SQL("200")
		}
		return sqlb.SQL("204")
	}
}

// responseHeaders builds the response_headers column: a JSON array literal
// of {"name":...,"value":...} objects, per spec.md §4.4. Content-Range is
// always present; Location is added for an insert returning representation
// with a single-column primary key; Prefer-Applied echoes back whichever
// Prefer directives this request actually honored. Every piece is joined
// through d.ConcatExpr rather than a literal "||", since MySQL and
// ClickHouse have no "||" string operator.
func responseHeaders(d Dialect, kind ir.NodeKind, prefs ir.Preferences, rs rowSource, wantsLocation bool, totalExpr sqlb.Snippet) sqlb.Snippet {
	entries := []sqlb.Snippet{contentRangeHeader(d, prefs, totalExpr)}
	if wantsLocation {
		entries = append(entries, locationHeader(d, rs))
	}
	if applied := preferApplied(prefs); applied != "" {
		entries = append(entries, headerEntry(d, "Prefer-Applied", sqlb.SQL("'"+applied+"'")))
	}
	return joinHeaderEntries(d, entries)
}

// headerEntry renders one {"name":"<name>","value":"<value>"} object, with
// value as a dynamic SQL expression spliced in via ConcatExpr.
func headerEntry(d Dialect, name string, value sqlb.Snippet) sqlb.Snippet {
	return d.ConcatExpr(
		sqlb.SQL(`'{"name":"`+name+`","value":"'`),
		value,
		sqlb.SQL(`'"}'`),
	)
}

// joinHeaderEntries wraps a list of header-entry expressions as a JSON
// array literal: ['<e0>','<e1>',...].
func joinHeaderEntries(d Dialect, entries []sqlb.Snippet) sqlb.Snippet {
	parts := make([]sqlb.Snippet, 0, len(entries)*2+1)
	parts = append(parts, sqlb.SQL("'['"))
	for i, e := range entries {
		if i > 0 {
			parts = append(parts, sqlb.SQL("','"))
		}
		parts = append(parts, e)
	}
	parts = append(parts, sqlb.SQL("']'"))
	return d.ConcatExpr(parts...)
}

// contentRangeHeader renders Content-Range using the same totalExpr
// assembleEnvelope already computed for total_result_set (_count.total for a
// read, _pt.page_total for a write, NULL otherwise), rather than hardcoding
// a CTE name that may not exist for this request kind.
func contentRangeHeader(d Dialect, prefs ir.Preferences, totalExpr sqlb.Snippet) sqlb.Snippet {
	total := sqlb.SQL("NULL")
	if prefs.Count == ir.CountExact {
		total = d.CastExpr(totalExpr, "text")
	}
	rangeVal := d.ConcatExpr(
		sqlb.SQL("'0-'"),
		d.CastExpr(sqlb.SQL("(_pt.page_total - 1)"), "text"),
		sqlb.SQL("'/'"),
		sqlb.SQL("COALESCE(").Add(total).AddSQL(", '*')"),
	)
	return headerEntry(d, "Content-Range", rangeVal)
}

// locationHeader reads the captured primary key out of the _loc CTE
// assembleEnvelope adds for this case, and renders it as /<table>?pk=eq.<v>.
func locationHeader(d Dialect, rs rowSource) sqlb.Snippet {
	value := d.ConcatExpr(
		sqlb.SQL("'/"+rs.table+"?"+rs.pkCols[0]+"=eq.'"),
		d.CastExpr(sqlb.SQL("_loc._pk"), "text"),
	)
	return headerEntry(d, "Location", value)
}

// preferApplied renders the effective Preferences as a comma-separated
// Prefer-Applied value. The parser fills in defaults, so return= and tx=
// are always present, even for a request with no Prefer header; count=
// and resolution= appear only when set to something other than none.
// ReturnPref/CountPref/
// Resolution/TxPref all hold the literal Prefer-header token as their
// underlying string, so no extra translation table is needed.
func preferApplied(prefs ir.Preferences) string {
	var parts []string
	if prefs.Return != "" {
		parts = append(parts, "return="+string(prefs.Return))
	}
	if prefs.Count != "" && prefs.Count != ir.CountNone {
		parts = append(parts, "count="+string(prefs.Count))
	}
	if prefs.Resolution != ir.ResolutionNone {
		parts = append(parts, "resolution="+string(prefs.Resolution))
	}
	if prefs.Tx != "" {
		parts = append(parts, "tx="+string(prefs.Tx))
	}
	return strings.Join(parts, ",")
}

// wrapParens parenthesizes each snippet in parts, for AND/OR joining.
func wrapParens(parts []sqlb.Snippet) []sqlb.Snippet {
	out := make([]sqlb.Snippet, len(parts))
	for i, p := range parts {
		out[i] = sqlb.SQL("(").Add(p).AddSQL(")")
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }

func upper(s string) string { return strings.ToUpper(s) }
