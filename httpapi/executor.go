// Package httpapi wires net/http to the translator: it decodes a request
// into parser.RawRequest, runs it through parser.ParseRequest and the
// dialect package, executes the resulting statement(s) against a live
// *sql.DB, and assembles the JSON/CSV response. Grounded on
// api/database/base.go's Database wrapper and middleware.go's withDB
// wrapping, generalized from one pooled SQLite handle to any of the four
// dialect.Dialect backends and their two write strategies (single CTE vs.
// two-phase).
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/dialect"
	"github.com/atomicbase/restsql/ir"
	"github.com/atomicbase/restsql/parser"
)

// querier is the subset of *sql.DB / *sql.Tx that runEnvelope needs, so the
// same scanning code serves both the no-transaction read path and the
// two-phase write path's representation re-select.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor owns the live connection and dialect for one backend and turns
// a RawRequest into a Response.
type Executor struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	Hook    *dialect.PreRequestHook

	schema func() *catalog.DbSchema
}

// NewExecutor builds an Executor. schema is called once per request so a
// schema reload (AddSchema/Build against a freshly introspected snapshot)
// is picked up without restarting the server, matching catalog.DbSchema's
// documented swap-the-pointer concurrency contract.
func NewExecutor(db *sql.DB, d dialect.Dialect, hook *dialect.PreRequestHook, schema func() *catalog.DbSchema) *Executor {
	return &Executor{DB: db, Dialect: d, Hook: hook, schema: schema}
}

// Execute parses raw, formats it for the executor's dialect, runs it and
// returns the assembled Response.
func (ex *Executor) Execute(ctx context.Context, raw parser.RawRequest) (*Response, *apierr.Error) {
	schema := ex.schema()
	req, perr := parser.ParseRequest(schema, raw)
	if perr != nil {
		return nil, perr
	}

	isWrite := req.Query.Kind != ir.KindSelect
	if !isWrite || ex.Dialect.SupportsReturningInCTE() {
		result, ferr := dialect.Format(schema, ex.Dialect, req, ex.Hook)
		if ferr != nil {
			return nil, ferr
		}
		if isWrite && req.Preferences.Tx == ir.TxRollback {
			return ex.runEnvelopeRollback(ctx, result)
		}
		return ex.runEnvelope(ctx, ex.DB, result)
	}
	return ex.runTwoPhase(ctx, schema, req)
}

// runEnvelopeRollback runs a single-statement write inside an explicit
// transaction that is always rolled back, the only way to honor
// Prefer: tx=rollback on a dialect whose write is otherwise one
// autocommitting statement.
func (ex *Executor) runEnvelopeRollback(ctx context.Context, result dialect.Result) (*Response, *apierr.Error) {
	tx, err := ex.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.InternalErr(err)
	}
	defer tx.Rollback()
	return ex.runEnvelope(ctx, tx, result)
}

// runEnvelope executes a single Format result and scans its one-row
// envelope into a Response.
func (ex *Executor) runEnvelope(ctx context.Context, q querier, result dialect.Result) (*Response, *apierr.Error) {
	row := q.QueryRowContext(ctx, result.SQL, result.Params...)

	var pageTotal sql.NullInt64
	var totalResultSet sql.NullInt64
	var body []byte
	var headersJSON string
	var status int
	if err := row.Scan(&pageTotal, &totalResultSet, &body, &headersJSON, &status); err != nil {
		return nil, classifyDBError(err)
	}

	headers, herr := decodeHeaders(headersJSON)
	if herr != nil {
		return nil, apierr.InternalErr(herr)
	}
	if len(body) == 0 {
		body = []byte("[]")
	}
	return &Response{Status: status, Headers: headers, Body: body}, nil
}

// runTwoPhase drives a dialect.TwoPhasePlan to completion: pre-request
// hook, then (DELETE only) the pre-mutation representation select, then
// capture, mutate, and — unless Preferences.Return is minimal — the
// post-mutation representation select. Everything runs in one transaction,
// committed unless Preferences.Tx is rollback.
func (ex *Executor) runTwoPhase(ctx context.Context, schema *catalog.DbSchema, req *ir.ApiRequest) (*Response, *apierr.Error) {
	plan, ferr := dialect.FormatWrite(schema, ex.Dialect, req, ex.Hook)
	if ferr != nil {
		return nil, ferr
	}

	tx, err := ex.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.InternalErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if plan.PreRequest != nil {
		if _, err := tx.ExecContext(ctx, plan.PreRequest.SQL, plan.PreRequest.Params...); err != nil {
			return nil, classifyDBError(err)
		}
	}

	// DELETE's representation must be read before Mutate removes the rows;
	// FormatWrite already built it against the pre-mutation table.
	if plan.Kind == ir.KindDelete && plan.NeedsRepresentation && plan.RepresentBuilder != nil {
		preRepr, rerr := plan.RepresentBuilder(nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, rerr := ex.runEnvelope(ctx, tx, preRepr)
		if rerr != nil {
			return nil, rerr
		}
		if _, err := tx.ExecContext(ctx, plan.Mutate.SQL, plan.Mutate.Params...); err != nil {
			return nil, classifyDBError(err)
		}
		if aerr := ex.finishTx(tx, req, &committed); aerr != nil {
			return nil, aerr
		}
		return resp, nil
	}

	var pkValues []any
	if plan.Capture.SQL != "" {
		vals, cerr := ex.capturePkValues(ctx, tx, plan.Capture)
		if cerr != nil {
			return nil, cerr
		}
		pkValues = vals
	}

	mutResult, err := tx.ExecContext(ctx, plan.Mutate.SQL, plan.Mutate.Params...)
	if err != nil {
		return nil, classifyDBError(err)
	}

	if plan.Kind == ir.KindInsert && plan.RepresentBuilder != nil {
		id, lerr := mutResult.LastInsertId()
		if lerr != nil {
			return nil, apierr.InternalErr(lerr)
		}
		pkValues = []any{id}
	}

	var resp *Response
	if plan.NeedsRepresentation && plan.RepresentBuilder != nil {
		reprResult, rerr := plan.RepresentBuilder(pkValues)
		if rerr != nil {
			return nil, rerr
		}
		resp, rerr = ex.runEnvelope(ctx, tx, reprResult)
		if rerr != nil {
			return nil, rerr
		}
	} else {
		resp = minimalResponse(req, mutResult)
	}

	if aerr := ex.finishTx(tx, req, &committed); aerr != nil {
		return nil, aerr
	}
	return resp, nil
}

func (ex *Executor) finishTx(tx *sql.Tx, req *ir.ApiRequest, committed *bool) *apierr.Error {
	if req.Preferences.Tx == ir.TxRollback {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return apierr.InternalErr(err)
	}
	*committed = true
	return nil
}

// capturePkValues runs a dialect.TwoPhasePlan's Capture statement and
// flattens every returned row's columns into a single ordered slice,
// matching pkEqualityCondition's expectation of one value per primary-key
// column for the single matched row a PUT/PATCH-by-key targets.
func (ex *Executor) capturePkValues(ctx context.Context, tx *sql.Tx, capture dialect.Result) ([]any, *apierr.Error) {
	rows, err := tx.QueryContext(ctx, capture.SQL, capture.Params...)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	cols, cerr := rows.Columns()
	if cerr != nil {
		return nil, apierr.InternalErr(cerr)
	}

	var values []any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apierr.InternalErr(err)
		}
		values = append(values, dest...)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.InternalErr(err)
	}
	return values, nil
}

// minimalResponse builds a Response for Preferences.Return == ReturnMinimal,
// where no representation select runs: status follows the same kind-based
// rule Format's responseStatus applies, and Content-Range is derived from
// RowsAffected since no query computed a page total.
func minimalResponse(req *ir.ApiRequest, res sql.Result) *Response {
	status := 204
	if req.Query.Kind == ir.KindInsert {
		status = 201
	}
	var headers []Header
	if n, err := res.RowsAffected(); err == nil {
		headers = append(headers, Header{Name: "Content-Range", Value: "*/" + strconv.FormatInt(n, 10)})
	}
	return &Response{Status: status, Headers: headers}
}

type headerEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func decodeHeaders(raw string) ([]Header, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []headerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make([]Header, len(entries))
	for i, e := range entries {
		out[i] = Header{Name: e.Name, Value: e.Value}
	}
	return out, nil
}
