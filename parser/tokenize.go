// Package parser turns an HTTP method, path, query pairs, headers,
// cookies and body into an ir.ApiRequest, or a structured *apierr.Error.
// The tokenizer helpers below are shared by the select-list, filter-value
// and order-list grammars; all three share the teacher's quote/escape
// convention (daos/build_query.go's parseSelect, daos/query_helpers.go's
// tokenKeyValList): a backslash escapes the next rune literally, and a
// double quote toggles a literal span in which separators are not special.
package parser

import "strings"

// splitTopLevel splits s on sep, honoring backslash-escapes and
// double-quoted spans the way the teacher's hand-written tokenizers do,
// so e.g. `a,"b,c",d` splits into ["a", "b,c", "d"].
func splitTopLevel(s string, sep rune) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && r == sep:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}

// splitDotOperator splits a filter value's leading `op.` or `not.op.`
// prefix from its argument, returning the operator tokens and the
// remaining raw argument. Unlike splitTopLevel this never honors quoting:
// PostgREST filter values don't quote the operator segment.
func splitDotOperator(s string) (negate bool, op string, rest string) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) == 2 && parts[0] == "not" {
		negate = true
		s = parts[1]
		parts = strings.SplitN(s, ".", 2)
	}
	if len(parts) != 2 {
		return negate, "", s
	}
	return negate, parts[0], parts[1]
}

// splitQualifiedName splits a `table.column` or `alias.json.path` token
// into its first dot-separated segment and the remainder, used when a
// filter/order key might be schema- or relation-qualified.
func splitQualifiedName(s string) (first, rest string, hasRest bool) {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}
