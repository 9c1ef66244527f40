package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/parser"
)

// Dependencies are a handler's runtime collaborators: the per-dialect
// Executor plus the request-shaping defaults every RawRequest carries.
// Grounded on api/database/handlers.go's RegisterRoutes, generalized from
// table-named routes to the single catch-all resource pattern a REST-to-SQL
// translator needs.
type Dependencies struct {
	Executor         *Executor
	SchemaName       string
	Role             string
	MaxRows          int
	AllowedFunctions map[string]bool
}

// RegisterRoutes attaches every route this server exposes to mux, using Go
// 1.22's method+pattern ServeMux syntax the way api/database/handlers.go
// does.
func RegisterRoutes(mux *http.ServeMux, dep *Dependencies) {
	mux.HandleFunc("GET /health", handleHealth(dep))

	mux.HandleFunc("GET /rpc/{fn}", handleResource(dep))
	mux.HandleFunc("POST /rpc/{fn}", handleResource(dep))

	mux.HandleFunc("GET /{resource...}", handleResource(dep))
	mux.HandleFunc("POST /{resource...}", handleResource(dep))
	mux.HandleFunc("PATCH /{resource...}", handleResource(dep))
	mux.HandleFunc("PUT /{resource...}", handleResource(dep))
	mux.HandleFunc("DELETE /{resource...}", handleResource(dep))
}

func handleHealth(dep *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := dep.Executor.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func handleResource(dep *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := buildRawRequest(r, dep)
		if err != nil {
			writeError(w, apierr.ParseErr("malformed request: %v", err))
			return
		}

		resp, aerr := dep.Executor.Execute(r.Context(), raw)
		if aerr != nil {
			writeError(w, aerr)
			return
		}
		writeResponse(w, r, resp)
	}
}

// buildRawRequest decodes an *http.Request into the parser's wire-neutral
// RawRequest, preserving query-string order (net/url.Values discards it,
// so the pairs are walked by hand rather than through r.URL.Query()).
func buildRawRequest(r *http.Request, dep *Dependencies) (parser.RawRequest, error) {
	defer r.Body.Close()
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return parser.RawRequest{}, err
	}

	query, err := parseOrderedQuery(r.URL.RawQuery)
	if err != nil {
		return parser.RawRequest{}, err
	}

	return parser.RawRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Headers: map[string]string{
			"prefer": r.Header.Get("Prefer"),
			"accept": r.Header.Get("Accept"),
			"range":  r.Header.Get("Range"),
		},
		Body:             string(bodyBytes),
		MaxRows:          dep.MaxRows,
		SchemaName:       dep.SchemaName,
		Role:             dep.Role,
		AllowedFunctions: dep.AllowedFunctions,
	}, nil
}

func parseOrderedQuery(raw string) ([]parser.QueryPair, error) {
	if raw == "" {
		return nil, nil
	}
	var out []parser.QueryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		name, err := url.QueryUnescape(kv[0])
		if err != nil {
			return nil, err
		}
		value := ""
		if len(kv) == 2 {
			value, err = url.QueryUnescape(kv[1])
			if err != nil {
				return nil, err
			}
		}
		out = append(out, parser.QueryPair{Name: name, Value: value})
	}
	return out, nil
}

// writeResponse applies Accept-driven body post-processing (CSV, singular
// JSON) and writes the envelope's headers, status and body.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	accept := strings.ToLower(r.Header.Get("Accept"))
	body := resp.Body
	contentType := "application/json"

	switch {
	case strings.Contains(accept, "text/csv"):
		csvBody, cerr := jsonArrayToCSV(body)
		if cerr != nil {
			writeError(w, apierr.InternalErr(cerr))
			return
		}
		body = csvBody
		contentType = "text/csv"
	case strings.Contains(accept, "vnd.pgrst.object+json"):
		singular, serr := unwrapSingular(body)
		if serr != nil {
			writeError(w, serr)
			return
		}
		body = singular
	}

	for _, h := range resp.Headers {
		w.Header().Set(h.Name, h.Value)
	}
	if len(body) > 0 {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.Status)
	if len(body) > 0 {
		w.Write(body)
	}
}

// unwrapSingular enforces the Accept: application/vnd.pgrst.object+json
// contract: the body must decode to exactly one JSON array element, which
// is returned bare; any other count is a singularity error.
func unwrapSingular(body []byte) ([]byte, *apierr.Error) {
	var rows []json.RawMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, apierr.InternalErr(err)
		}
	}
	if len(rows) != 1 {
		return nil, apierr.SingularityErr(len(rows))
	}
	return rows[0], nil
}

// jsonArrayToCSV renders a JSON row array as CSV. No dialect here can
// render CSV portably (PostgreSQL's COPY and SQLite's .mode csv are both
// out-of-band of the query itself), so this is done in Go after the fact;
// column order is not preserved by encoding/json's map decoding, so columns
// are sorted for a deterministic header row instead.
func jsonArrayToCSV(body []byte) ([]byte, error) {
	var rows []map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if len(rows) == 0 {
		cw.Flush()
		return buf.Bytes(), cw.Error()
	}

	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	if err := cw.Write(cols); err != nil {
		return nil, err
	}
	for _, row := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = csvCell(row[c])
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func csvCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

// writeError renders an *apierr.Error as the JSON error body of spec.md §6.
func writeError(w http.ResponseWriter, aerr *apierr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(aerr.Status())
	json.NewEncoder(w).Encode(map[string]any{
		"code":       aerr.Code,
		"message":    aerr.Message,
		"details":    aerr.Details,
		"hint":       aerr.Hint,
		"candidates": aerr.Candidates,
	})
}
