// Package apierr defines the finite set of error kinds the translator can
// produce and maps each to an HTTP status, a stable machine code and an
// optional hint, following the error model of spec.md §7.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind enumerates the error kinds the core can produce. The set is finite
// and stable: new kinds are never invented ad hoc by callers.
type Kind string

const (
	KindParseRequest      Kind = "PARSE_REQUEST_ERROR"
	KindNoRelation        Kind = "NO_RELATION"
	KindAmbiguousRelation Kind = "AMBIGUOUS_RELATION"
	KindUnknownColumn     Kind = "UNKNOWN_COLUMN"
	KindUnknownTable      Kind = "UNKNOWN_TABLE"
	KindUnacceptableSchema Kind = "UNACCEPTABLE_SCHEMA"
	KindSingularity       Kind = "SINGULARITY_ERROR"
	KindPutMatchingPk     Kind = "PUT_MATCHING_PK_ERROR"
	KindGucStatus         Kind = "GUC_STATUS_ERROR"
	KindGucHeaders        Kind = "GUC_HEADERS_ERROR"
	KindDb                Kind = "DB_ERROR"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// StatusFor is the single source of truth for the Kind -> HTTP status
// mapping in spec.md §7. Both the HTTP layer and tests consult this.
func StatusFor(k Kind) int {
	switch k {
	case KindParseRequest, KindNoRelation:
		return http.StatusBadRequest
	case KindAmbiguousRelation:
		return 300
	case KindUnknownColumn, KindUnknownTable:
		return http.StatusNotFound
	case KindUnacceptableSchema:
		return http.StatusNotAcceptable
	case KindSingularity:
		return http.StatusNotAcceptable
	case KindPutMatchingPk:
		return http.StatusBadRequest
	case KindGucStatus, KindGucHeaders, KindInternal:
		return http.StatusInternalServerError
	case KindDb:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RelationCandidate describes one ambiguous relation candidate surfaced in
// an AmbiguousRelation error's Details/Candidates.
type RelationCandidate struct {
	Name        string `json:"name"`
	Origin      string `json:"origin"`
	Target      string `json:"target"`
	Cardinality string `json:"cardinality"` // parent | child | many-to-many | custom
}

// Error is the structured error value returned by every core operation.
// Message/Details/Hint map directly onto the JSON error body of spec.md §6.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Details    string
	Hint       string
	Candidates []RelationCandidate
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status returns the HTTP status this error should be reported with.
func (e *Error) Status() int { return StatusFor(e.Kind) }

// New builds an Error of the given kind with code equal to the kind string.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: string(kind), Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with Details set.
func (e *Error) WithDetails(details string) *Error {
	n := *e
	n.Details = details
	return &n
}

// WithHint returns a copy of the error with Hint set.
func (e *Error) WithHint(hint string) *Error {
	n := *e
	n.Hint = hint
	return &n
}

// Convenience constructors mirroring the named errors of spec.md §4.2/§7.

func NoRelationErr(origin, target string) *Error {
	return Newf(KindNoRelation, "could not find a relationship between %s and %s", origin, target)
}

func AmbiguousRelationErr(origin, target string, candidates []RelationCandidate) *Error {
	e := Newf(KindAmbiguousRelation, "more than one relationship was found for %s and %s", origin, target)
	e.Candidates = candidates
	return e
}

func UnknownTableErr(name string) *Error {
	return Newf(KindUnknownTable, "table or view %q does not exist in the schema", name)
}

func UnknownColumnErr(table, column string) *Error {
	return Newf(KindUnknownColumn, "column %q does not exist on %q", column, table)
}

func ParseErr(format string, args ...any) *Error {
	return Newf(KindParseRequest, format, args...)
}

func UnacceptableSchemaErr(schema string) *Error {
	return Newf(KindUnacceptableSchema, "schema %q is not exposed", schema)
}

func SingularityErr(count int) *Error {
	return Newf(KindSingularity, "singular response required, %d rows matched", count)
}

func PutMatchingPkErr() *Error {
	return New(KindPutMatchingPk, "PUT requires a filter matching the full primary key")
}

func GucStatusErr(err error) *Error {
	return Newf(KindGucStatus, "invalid response status set by pre-request hook: %v", err)
}

func GucHeadersErr(err error) *Error {
	return Newf(KindGucHeaders, "invalid response headers set by pre-request hook: %v", err)
}

func InternalErr(err error) *Error {
	return Newf(KindInternal, "internal error: %v", err)
}
