// Package sqlb is a small algebra for composing SQL fragments interleaved
// with bound parameters, finalized once into a single (sql, params) pair.
// Grounded on the chunk/fold design of dynamic_statement.rs: a Snippet is a
// sequence of Sql or Param chunks; Add concatenates sequences; Finalize
// walks the sequence exactly once, assigning placeholders in traversal
// order. No literal escaping happens here — literal chunks are trusted SQL
// text, and every user-supplied value must flow in as a Param.
package sqlb

import (
	"strconv"
	"strings"
)

type chunkKind int

const (
	chunkSQL chunkKind = iota
	chunkParam
)

type chunk struct {
	kind     chunkKind
	text     string
	param    any
	typeHint string
}

// Snippet is an ordered sequence of literal SQL and parameter chunks.
// The zero value is an empty snippet, ready to use.
type Snippet struct {
	chunks []chunk
}

// SQL builds a Snippet from a single literal SQL fragment.
func SQL(s string) Snippet {
	if s == "" {
		return Snippet{}
	}
	return Snippet{chunks: []chunk{{kind: chunkSQL, text: s}}}
}

// P builds a Snippet holding a single bound parameter. The same value
// passed to P twice produces two distinct placeholders when finalized;
// parameters are never deduplicated.
func P(v any) Snippet {
	return Snippet{chunks: []chunk{{kind: chunkParam, param: v}}}
}

// PTyped builds a bound-parameter Snippet carrying an explicit SQL type
// name, consumed by placeholder styles that render the type inline (the
// ClickHouse {pN:Type} convention); other styles ignore it.
func PTyped(v any, sqlType string) Snippet {
	return Snippet{chunks: []chunk{{kind: chunkParam, param: v, typeHint: sqlType}}}
}

// Empty is the empty snippet, useful as a fold seed.
func Empty() Snippet { return Snippet{} }

// Len reports the number of chunks (not the rendered SQL length).
func (s Snippet) Len() int { return len(s.chunks) }

// IsEmpty reports whether the snippet has no chunks.
func (s Snippet) IsEmpty() bool { return len(s.chunks) == 0 }

// Add concatenates s and other, left to right, without copying either's
// backing chunk slice destructively.
func (s Snippet) Add(other Snippet) Snippet {
	out := make([]chunk, 0, len(s.chunks)+len(other.chunks))
	out = append(out, s.chunks...)
	out = append(out, other.chunks...)
	return Snippet{chunks: out}
}

// AddSQL appends a literal SQL fragment.
func (s Snippet) AddSQL(text string) Snippet {
	return s.Add(SQL(text))
}

// AddParam appends a bound parameter.
func (s Snippet) AddParam(v any) Snippet {
	return s.Add(P(v))
}

// Join concatenates snippets with a literal separator between each pair,
// mirroring dynamic_statement.rs's JoinIterator (fold-then-drop-leading-sep).
func Join(sep string, parts ...Snippet) Snippet {
	if len(parts) == 0 {
		return Empty()
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = out.AddSQL(sep).Add(p)
	}
	return out
}

// PlaceholderStyle controls how Finalize renders a parameter's position
// into SQL text, letting each dialect pick its own bind-variable syntax
// without sqlb knowing about dialects.
type PlaceholderStyle int

const (
	// PlaceholderDollar renders $1, $2, ... (PostgreSQL).
	PlaceholderDollar PlaceholderStyle = iota
	// PlaceholderQuestion renders ? for every parameter (SQLite, MySQL).
	PlaceholderQuestion
	// PlaceholderAt renders @p1, @p2, ... (reserved for future dialects).
	PlaceholderAt
	// PlaceholderClickHouse renders {p1:Type}, {p2:Type}, ... using each
	// chunk's typeHint (defaulting to String when unset).
	PlaceholderClickHouse
)

// Finalize walks the snippet once and renders it into a single SQL string
// plus the ordered parameter slice. startIndex is the 1-based index of the
// first placeholder to emit (non-1 values let a caller splice a snippet
// into a larger statement that already consumed earlier placeholders).
// Returns the rendered SQL, the parameters in traversal order, and the
// next unused placeholder index.
func Finalize(s Snippet, style PlaceholderStyle, startIndex int) (string, []any, int) {
	var b strings.Builder
	params := make([]any, 0, len(s.chunks))
	idx := startIndex
	for _, c := range s.chunks {
		switch c.kind {
		case chunkSQL:
			b.WriteString(c.text)
		case chunkParam:
			b.WriteString(renderPlaceholder(style, idx, c.typeHint))
			params = append(params, c.param)
			idx++
		}
	}
	return b.String(), params, idx
}

func renderPlaceholder(style PlaceholderStyle, idx int, typeHint string) string {
	switch style {
	case PlaceholderQuestion:
		return "?"
	case PlaceholderAt:
		return "@p" + strconv.Itoa(idx)
	case PlaceholderClickHouse:
		if typeHint == "" {
			typeHint = "String"
		}
		return "{p" + strconv.Itoa(idx) + ":" + typeHint + "}"
	default:
		return "$" + strconv.Itoa(idx)
	}
}
