// Package ir defines the request intermediate representation: a tree of
// Select/Insert/Update/Delete nodes with nested sub-selects for embedded
// resources. Values are built once by the parser and consumed once by a
// dialect formatter; nothing downstream mutates a Query in place, except
// the SQLite two-phase rewrite, which works on an explicit clone (see the
// dialect package). Grounded on daos/build_query.go's Relation/column
// pair, generalized from a single joins-only shape into the full node sum
// type a read/write translator needs.
package ir

// NodeKind tags which write/read operation a Query represents.
type NodeKind int

const (
	KindSelect NodeKind = iota
	KindInsert
	KindUpdate
	KindDelete
)

// Cardinality mirrors catalog.Cardinality without importing catalog,
// keeping ir free of a dependency on the schema package; the parser is
// responsible for translating catalog.Cardinality into ir.Cardinality
// when it attaches a resolved relation to a sub-select.
type Cardinality string

const (
	CardinalityParent     Cardinality = "parent"
	CardinalityChild      Cardinality = "child"
	CardinalityManyToMany Cardinality = "many-to-many"
	CardinalityCustom     Cardinality = "custom"
)

// JoinInfo describes how a sub-select's rows relate to its parent's rows.
type JoinInfo struct {
	Cardinality Cardinality
	OriginCols  []string
	TargetCols  []string

	// ToMany is meaningful only when Cardinality == CardinalityCustom: it
	// picks between the to-one scalar-object embed and the to-many
	// array embed, since a custom relation carries no FK direction of its
	// own to infer shape from.
	ToMany bool

	// Through* are set only when Cardinality == CardinalityManyToMany.
	Through           string
	ThroughOriginCols []string
	ThroughTargetCols []string
}

// Query is one node of the request tree plus its embedded sub-selects.
// Exactly one of Select/Insert/Update/Delete is non-nil, selected by Kind.
type Query struct {
	Kind NodeKind
	Name string // alias this node is selected under in the parent's body, "" at the root

	Select *Select
	Insert *Insert
	Update *Update
	Delete *Delete

	SubSelects []SubSelect
}

// SubSelect pairs an embedded Query with the join that attaches it to its
// parent, and whether the embed is required (inner) or optional (left).
type SubSelect struct {
	Query *Query
	Join  JoinInfo
	Inner bool
}

// Select is the read-node variant.
type Select struct {
	From     string
	Where    *Condition
	Select   []SelectItem
	Order    []OrderItem
	Limit    *int
	Offset   *int
	GroupBy  []string

	// RpcArgs holds the named call arguments for a `GET|POST /rpc/<fn>`
	// request; it is set only when From names a function rather than a
	// table or view.
	RpcArgs map[string]Param
}

// Insert is the POST-node variant. Payload holds one decoded JSON object
// per row to insert, in request order.
type Insert struct {
	Into      string
	Columns   []string
	Payload   []map[string]any
	Where     *Condition
	Returning []string
	Select    []SelectItem
	OnConflict *OnConflict
}

// OnConflict captures Prefer: resolution=merge-duplicates|ignore-duplicates.
type OnConflict struct {
	Resolution  Resolution
	TargetCols  []string
}

type Resolution string

const (
	ResolutionNone             Resolution = ""
	ResolutionMergeDuplicates  Resolution = "merge-duplicates"
	ResolutionIgnoreDuplicates Resolution = "ignore-duplicates"
)

// Update is the PATCH/PUT-node variant.
type Update struct {
	Table     string
	Columns   []string
	Payload   map[string]any
	Where     *Condition
	Returning []string
	Select    []SelectItem
}

// Delete is the DELETE-node variant.
type Delete struct {
	From      string
	Where     *Condition
	Returning []string
	Select    []SelectItem
}

// SelectItemKind tags a SelectItem's variant.
type SelectItemKind int

const (
	SelectItemSimple SelectItemKind = iota
	SelectItemFunc
	SelectItemStar
)

// SelectItem is one entry of a select list: a bare column, a function
// call, or `*`.
type SelectItem struct {
	Kind SelectItemKind

	// Simple
	Field Field
	Alias string
	Cast  string

	// Func
	FuncName string
	Args     []Field
}

// Field is a column reference with an optional JSON path chain, e.g.
// `data->attrs->>name` parses into Column: "data", Path: [{Key:"attrs"},
// {Key:"name", AsText:true}].
type Field struct {
	Column string
	Path   []JSONPathStep
}

// JSONPathStep is one `->` or `->>` hop, or an array index.
type JSONPathStep struct {
	Key    string // object key; empty when Index is used
	Index  *int   // array index; nil when Key is used
	AsText bool   // true when this hop used ->> rather than ->
}

// OrderItem is one `order=` key.
type OrderItem struct {
	Field      Field
	Descending bool
	NullsFirst *bool // nil: dialect default
}

// ConditionKind tags a Condition's variant.
type ConditionKind int

const (
	ConditionSingle ConditionKind = iota
	ConditionGroup
)

// LogicOp is the boolean combinator of a Group condition.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// Condition is a single predicate or a logical group of conditions,
// matching the `and=`/`or=` nesting of the query grammar.
type Condition struct {
	Kind   ConditionKind
	Negate bool

	// Single
	Field  Field
	Filter Filter

	// Group
	LogicOp    LogicOp
	Conditions []Condition
}

// FilterKind tags a Filter's variant.
type FilterKind int

const (
	FilterOp FilterKind = iota
	FilterIn
	FilterFts
	FilterCol
	FilterIs
	FilterBetween
)

// IsValue is the right-hand side of an `is.` filter.
type IsValue string

const (
	IsNull    IsValue = "null"
	IsTrue    IsValue = "true"
	IsFalse   IsValue = "false"
	IsUnknown IsValue = "unknown"
)

// Filter is the right-hand side of a Condition's Single variant: a
// comparison operator and operand, an IN list, a full-text search
// predicate, a column-to-column comparison, an IS check, or a BETWEEN
// range.
type Filter struct {
	Kind FilterKind

	// FilterOp
	Op  string
	Val Param

	// FilterIn
	List []Param

	// FilterFts
	FtsOp   string
	Lang    string

	// FilterCol
	ColOp    string
	RHSField Field

	// FilterIs
	Is IsValue

	// FilterBetween
	Low, High Param
}

// ParamKind tags a Param's variant.
type ParamKind int

const (
	ParamScalar ParamKind = iota
	ParamList
	ParamJSON
	ParamLiteral
)

// Param is a tagged value destined for a sqlb.P placeholder, carrying an
// optional data-type hint the formatter uses to emit explicit casts.
type Param struct {
	Kind     ParamKind
	Scalar   any
	List     []any
	JSON     []byte
	Literal  string
	TypeHint string
}

// Preferences is the parsed Prefer header.
type Preferences struct {
	Return     ReturnPref
	Resolution Resolution
	Count      CountPref
	Tx         TxPref
}

type ReturnPref string

const (
	ReturnMinimal        ReturnPref = "minimal"
	ReturnRepresentation ReturnPref = "representation"
	ReturnHeadersOnly    ReturnPref = "headers-only"
)

type CountPref string

const (
	CountNone      CountPref = "none"
	CountExact     CountPref = "exact"
	CountPlanned   CountPref = "planned"
	CountEstimated CountPref = "estimated"
)

type TxPref string

const (
	TxCommit   TxPref = "commit"
	TxRollback TxPref = "rollback"
)

// AcceptKind is the negotiated Accept content type.
type AcceptKind int

const (
	AcceptJSON AcceptKind = iota
	AcceptSingularJSON
	AcceptCSV
)

// ApiRequest is the envelope the parser produces: everything the
// formatter needs beyond the Query tree itself.
type ApiRequest struct {
	Method      string
	Accept      AcceptKind
	Preferences Preferences
	SchemaName  string
	Role        string
	Path        string
	Query       Query
}
