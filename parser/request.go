package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
)

// QueryPair is one ordered (name, value) pair from the request's query
// string. Order matters: §5 requires filters, order clauses and selected
// columns to preserve query-string order in the emitted SQL.
type QueryPair struct {
	Name  string
	Value string
}

// RawRequest is everything the parser consumes, already decoded off the
// wire by the surrounding HTTP layer (httpapi): nothing in this package
// touches net/http directly, so translate() stays testable without a
// server.
type RawRequest struct {
	Method     string
	Path       string
	Query      []QueryPair
	Headers    map[string]string // lower-cased keys
	Cookies    map[string]string
	Body       string
	MaxRows    int
	SchemaName string
	Role       string

	// AllowedFunctions restricts which aggregate/scalar function names a
	// select-list $fn(...) or groupby aggregate may reference; the zero
	// value (nil) means no function is allowed, matching a translator
	// configured with an empty db_allowed_select_functions list.
	AllowedFunctions map[string]bool
}

var allowedMethods = map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true}

// ParseRequest is the parser's single entry point: given a built schema
// and a RawRequest, produce an ir.ApiRequest or a structured *apierr.Error.
func ParseRequest(schema *catalog.DbSchema, req RawRequest) (*ir.ApiRequest, *apierr.Error) {
	if !allowedMethods[req.Method] {
		return nil, apierr.ParseErr("unsupported method %q", req.Method)
	}

	resource := strings.Trim(req.Path, "/")
	if resource == "" {
		return nil, apierr.ParseErr("request path must name a resource")
	}
	if strings.HasPrefix(resource, "rpc/") {
		return parseRpcRequest(req, strings.TrimPrefix(resource, "rpc/"))
	}

	obj, ok := schema.Object(req.SchemaName, resource)
	if !ok {
		return nil, apierr.UnknownTableErr(resource)
	}

	accept, aerr := parseAccept(req.Headers["accept"])
	if aerr != nil {
		return nil, aerr
	}
	prefs := parsePreferences(req.Headers["prefer"])

	grouped := groupQueryByEmbed(req.Query)
	root := grouped[""]

	where, werr := buildWhere(obj, root)
	if werr != nil {
		return nil, werr
	}

	out := &ir.ApiRequest{
		Method:      req.Method,
		Accept:      accept,
		Preferences: prefs,
		SchemaName:  req.SchemaName,
		Role:        req.Role,
		Path:        req.Path,
	}

	switch req.Method {
	case "GET":
		sel, lerr := buildSelectQuery(schema, obj, root, where, req.MaxRows, req.Headers["range"], grouped, req.AllowedFunctions)
		if lerr != nil {
			return nil, lerr
		}
		out.Query = *sel

	case "POST":
		rows, berr := parseInsertBody(obj, req.Body)
		if berr != nil {
			return nil, berr
		}
		selItems, subs, serr := selectForWrite(schema, obj, root, req.AllowedFunctions)
		if serr != nil {
			return nil, serr
		}
		var onConflict *ir.OnConflict
		if prefs.Resolution != ir.ResolutionNone {
			onConflict = &ir.OnConflict{Resolution: prefs.Resolution, TargetCols: obj.PrimaryKeyColumns()}
		}
		out.Query = ir.Query{
			Kind: ir.KindInsert,
			Insert: &ir.Insert{
				Into:       obj.Name,
				Columns:    payloadColumns(obj, rows),
				Payload:    rows,
				Returning:  returningColumns(obj, prefs),
				Select:     selItems,
				OnConflict: onConflict,
			},
			SubSelects: subs,
		}

	case "PATCH":
		row, berr := parseUpdateBody(obj, req.Body)
		if berr != nil {
			return nil, berr
		}
		selItems, subs, serr := selectForWrite(schema, obj, root, req.AllowedFunctions)
		if serr != nil {
			return nil, serr
		}
		out.Query = ir.Query{
			Kind: ir.KindUpdate,
			Update: &ir.Update{
				Table:     obj.Name,
				Columns:   payloadColumns(obj, []map[string]any{row}),
				Payload:   row,
				Where:     where,
				Returning: returningColumns(obj, prefs),
				Select:    selItems,
			},
			SubSelects: subs,
		}

	case "PUT":
		if perr := requirePkEqualityFilter(obj, where); perr != nil {
			return nil, perr
		}
		row, berr := parseUpdateBody(obj, req.Body)
		if berr != nil {
			return nil, berr
		}
		selItems, subs, serr := selectForWrite(schema, obj, root, req.AllowedFunctions)
		if serr != nil {
			return nil, serr
		}
		out.Query = ir.Query{
			Kind: ir.KindUpdate,
			Update: &ir.Update{
				Table:     obj.Name,
				Columns:   payloadColumns(obj, []map[string]any{row}),
				Payload:   row,
				Where:     where,
				Returning: returningColumns(obj, prefs),
				Select:    selItems,
			},
			SubSelects: subs,
		}

	case "DELETE":
		selItems, subs, serr := selectForWrite(schema, obj, root, req.AllowedFunctions)
		if serr != nil {
			return nil, serr
		}
		out.Query = ir.Query{
			Kind: ir.KindDelete,
			Delete: &ir.Delete{
				From:      obj.Name,
				Where:     where,
				Returning: returningColumns(obj, prefs),
				Select:    selItems,
			},
			SubSelects: subs,
		}
	}

	return out, nil
}

func returningColumns(obj *catalog.Object, prefs ir.Preferences) []string {
	if prefs.Return == ir.ReturnMinimal {
		return nil
	}
	cols := make([]string, 0, len(obj.Columns))
	for _, c := range obj.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// payloadColumns lists obj's columns that at least one payload row sets,
// in the object's column order: the column list of an INSERT or UPDATE.
func payloadColumns(obj *catalog.Object, rows []map[string]any) []string {
	var cols []string
	for _, c := range obj.Columns {
		for _, row := range rows {
			if _, ok := row[c.Name]; ok {
				cols = append(cols, c.Name)
				break
			}
		}
	}
	return cols
}

// selectForWrite resolves a write request's `select=` parameter (used
// with Prefer: return=representation) the same way a GET's select list
// is resolved.
func selectForWrite(schema *catalog.DbSchema, obj *catalog.Object, pairs []QueryPair, allowed map[string]bool) ([]ir.SelectItem, []ir.SubSelect, *apierr.Error) {
	selectParam := ""
	for _, p := range pairs {
		if p.Name == "select" {
			selectParam = p.Value
		}
	}
	raw, serr := parseSelectList(selectParam)
	if serr != nil {
		return nil, nil, serr
	}
	return resolveSelect(schema, obj, raw, allowed)
}

// buildSelectQuery assembles a full ir.Select (and its embedded
// sub-selects) for a GET request.
func buildSelectQuery(schema *catalog.DbSchema, obj *catalog.Object, pairs []QueryPair, where *ir.Condition, maxRows int, rangeHeader string, grouped map[string][]QueryPair, allowed map[string]bool) (*ir.Query, *apierr.Error) {
	selectParam := ""
	orderParam := ""
	var limit, offset *int
	var groupBy []string

	for _, p := range pairs {
		switch p.Name {
		case "select":
			selectParam = p.Value
		case "order":
			orderParam = p.Value
		case "limit":
			n, err := strconv.Atoi(p.Value)
			if err != nil || n < 0 {
				return nil, apierr.ParseErr("invalid limit %q", p.Value)
			}
			limit = &n
		case "offset":
			n, err := strconv.Atoi(p.Value)
			if err != nil || n < 0 {
				return nil, apierr.ParseErr("invalid offset %q", p.Value)
			}
			offset = &n
		case "groupby":
			groupBy = splitTopLevel(p.Value, ',')
		}
	}

	if rangeHeader != "" && limit == nil {
		o := 0
		if offset != nil {
			o = *offset
		}
		rangeLimit, rerr := parseRange(rangeHeader, &o)
		if rerr != nil {
			return nil, rerr
		}
		offset = &o
		limit = rangeLimit
	}

	if maxRows > 0 && (limit == nil || *limit > maxRows) {
		limit = &maxRows
	}

	raw, serr := parseSelectList(selectParam)
	if serr != nil {
		return nil, serr
	}
	selItems, subs, rerr := resolveSelect(schema, obj, raw, allowed)
	if rerr != nil {
		return nil, rerr
	}
	if len(selItems) == 0 && len(subs) == 0 {
		selItems = []ir.SelectItem{{Kind: ir.SelectItemStar}}
	}
	if merr := applyEmbedModifiers(schema, subs, grouped); merr != nil {
		return nil, merr
	}

	order, oerr := parseOrder(obj, orderParam)
	if oerr != nil {
		return nil, oerr
	}

	if len(groupBy) > 0 {
		if gerr := validateGroupBy(obj, selItems, groupBy); gerr != nil {
			return nil, gerr
		}
	}

	return &ir.Query{
		Kind: ir.KindSelect,
		Select: &ir.Select{
			From:    obj.Name,
			Where:   where,
			Select:  selItems,
			Order:   order,
			Limit:   limit,
			Offset:  offset,
			GroupBy: groupBy,
		},
		SubSelects: subs,
	}, nil
}

// applyEmbedModifiers folds the per-embed query pairs produced by
// groupQueryByEmbed (rel.order=, rel.limit=, rel.offset=, rel.col=...)
// into the already-resolved sub-selects of a single select level. Only
// one level of embed scoping is supported: a key like "rel.nested.order"
// is redirected to embed "rel" with the remainder "nested.order", which is
// then parsed as a column filter on rel and rejected as an unknown column.
func applyEmbedModifiers(schema *catalog.DbSchema, subs []ir.SubSelect, grouped map[string][]QueryPair) *apierr.Error {
	for i := range subs {
		pairs, ok := grouped[subs[i].Query.Name]
		if !ok {
			continue
		}
		childObj, ok := schema.Object("", subs[i].Query.Select.From)
		if !ok {
			return apierr.UnknownTableErr(subs[i].Query.Select.From)
		}

		var extraFilters []ir.Condition
		for _, p := range pairs {
			switch p.Name {
			case "limit":
				n, err := strconv.Atoi(p.Value)
				if err != nil || n < 0 {
					return apierr.ParseErr("invalid limit %q for embed %q", p.Value, subs[i].Query.Name)
				}
				subs[i].Query.Select.Limit = &n
			case "offset":
				n, err := strconv.Atoi(p.Value)
				if err != nil || n < 0 {
					return apierr.ParseErr("invalid offset %q for embed %q", p.Value, subs[i].Query.Name)
				}
				subs[i].Query.Select.Offset = &n
			case "order":
				order, oerr := parseOrder(childObj, p.Value)
				if oerr != nil {
					return oerr
				}
				subs[i].Query.Select.Order = order
			default:
				cond, cerr := parseCondition(childObj, p.Name, p.Value)
				if cerr != nil {
					return cerr
				}
				extraFilters = append(extraFilters, cond)
			}
		}

		if len(extraFilters) > 0 {
			combined := extraFilters
			if subs[i].Query.Select.Where != nil {
				combined = append([]ir.Condition{*subs[i].Query.Select.Where}, extraFilters...)
			}
			if len(combined) == 1 {
				subs[i].Query.Select.Where = &combined[0]
			} else {
				subs[i].Query.Select.Where = &ir.Condition{Kind: ir.ConditionGroup, LogicOp: ir.LogicAnd, Conditions: combined}
			}
		}
	}
	return nil
}

// validateGroupBy enforces §4.3's groupby-projection rule: every
// non-aggregated selected expression must appear in groupby. Per the
// recorded open-question decision, only column-set membership is
// checked; SQL-standard functional-dependency analysis is out of scope.
func validateGroupBy(obj *catalog.Object, items []ir.SelectItem, groupBy []string) *apierr.Error {
	inGroup := map[string]bool{}
	for _, g := range groupBy {
		inGroup[strings.TrimSpace(g)] = true
	}
	for _, it := range items {
		if it.Kind != ir.SelectItemSimple {
			continue
		}
		if !inGroup[it.Field.Column] {
			return apierr.ParseErr("column %q must appear in groupby or be aggregated", it.Field.Column)
		}
	}
	return nil
}

// buildWhere folds every non-reserved query pair plus and=/or= groups
// into a single top-level Condition, matching daos/query_helpers.go's
// BuildWhere: AND between distinct keys (and repeated values of the same
// key), OR within an `or=` group.
var reservedParams = map[string]bool{
	"select": true, "order": true, "limit": true, "offset": true, "groupby": true,
}

func buildWhere(obj *catalog.Object, pairs []QueryPair) (*ir.Condition, *apierr.Error) {
	var conds []ir.Condition
	for _, p := range pairs {
		if reservedParams[p.Name] {
			continue
		}
		switch p.Name {
		case "and":
			c, err := parseLogicGroup(obj, ir.LogicAnd, p.Value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		case "or":
			c, err := parseLogicGroup(obj, ir.LogicOr, p.Value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		default:
			c, err := parseCondition(obj, p.Name, p.Value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}
	if len(conds) == 1 {
		return &conds[0], nil
	}
	return &ir.Condition{Kind: ir.ConditionGroup, LogicOp: ir.LogicAnd, Conditions: conds}, nil
}

// groupQueryByEmbed splits query pairs into the root resource's own pairs
// (key "") and each embed alias's scoped pairs (e.g. "rel.order" -> key
// "rel", pair {Name:"order", ...}), per §4.3's embed modifiers. Root-level
// select/and/or/filter pairs are left untouched; only known embed-scoping
// suffixes (order, limit, offset) and column filters qualified by a
// leading "rel." are redirected. The map's iteration is never relied
// on for ordering; callers that need order-preserving embed scoping
// consult the returned per-embed slices, which retain query-string order.
func groupQueryByEmbed(pairs []QueryPair) map[string][]QueryPair {
	out := map[string][]QueryPair{}
	for _, p := range pairs {
		first, rest, has := splitQualifiedName(p.Name)
		if !has || reservedParams[p.Name] || p.Name == "and" || p.Name == "or" {
			out[""] = append(out[""], p)
			continue
		}
		out[first] = append(out[first], QueryPair{Name: rest, Value: p.Value})
	}
	return out
}

// parseRpcRequest builds a function-call Query for GET|POST /rpc/<fn>:
// a Select over `fn(args)` with no embeds, args taken from query pairs
// on GET or from a flat JSON object body on POST. rpc functions are not
// modeled in catalog.DbSchema, so argument names are not validated
// against a signature; the executor is responsible for rejecting an
// unknown function or argument mismatch.
func parseRpcRequest(req RawRequest, fnName string) (*ir.ApiRequest, *apierr.Error) {
	accept, aerr := parseAccept(req.Headers["accept"])
	if aerr != nil {
		return nil, aerr
	}
	prefs := parsePreferences(req.Headers["prefer"])

	args := map[string]ir.Param{}
	switch req.Method {
	case "GET":
		for _, p := range req.Query {
			if reservedParams[p.Name] {
				continue
			}
			args[p.Name] = scalarParam(p.Value)
		}
	case "POST":
		row, berr := parseRpcBody(req.Body)
		if berr != nil {
			return nil, berr
		}
		for k, v := range row {
			args[k] = rawValueParam(v)
		}
	default:
		return nil, apierr.ParseErr("unsupported method %q for rpc call", req.Method)
	}

	return &ir.ApiRequest{
		Method:      req.Method,
		Accept:      accept,
		Preferences: prefs,
		SchemaName:  req.SchemaName,
		Role:        req.Role,
		Path:        req.Path,
		Query: ir.Query{
			Kind: ir.KindSelect,
			Select: &ir.Select{
				From:    fnName,
				Select:  []ir.SelectItem{{Kind: ir.SelectItemFunc, FuncName: fnName}},
				RpcArgs: args,
			},
		},
	}, nil
}

func parseRpcBody(body string) (map[string]any, *apierr.Error) {
	if body == "" {
		return map[string]any{}, nil
	}
	var row map[string]any
	if err := json.Unmarshal([]byte(body), &row); err != nil {
		return nil, apierr.ParseErr("malformed rpc JSON body: %v", err)
	}
	return row, nil
}

// rawValueParam wraps a decoded JSON value (string, float64, bool, nil,
// or nested map/slice) as an ir.Param, routing composite values through
// the JSON variant rather than the scalar one.
func rawValueParam(v any) ir.Param {
	switch val := v.(type) {
	case map[string]any, []any:
		data, _ := json.Marshal(val)
		return ir.Param{Kind: ir.ParamJSON, JSON: data}
	default:
		return ir.Param{Kind: ir.ParamScalar, Scalar: val}
	}
}
